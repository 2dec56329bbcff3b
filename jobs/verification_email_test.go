package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestVerificationEmailJobSendsMail(t *testing.T) {
	job := NewVerificationEmailJob(SMTPConfig{Host: "mail.local", Port: 1025, From: "no-reply@caremesh.local"}, slog.Default(), nil)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	job.send = func(addr, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	task, err := NewVerificationEmailTask(VerificationEmailPayload{To: "ada@hospital.edu", DisplayName: "Ada Nguyen"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, "mail.local:1025", gotAddr)
	require.Equal(t, "no-reply@caremesh.local", gotFrom)
	require.Equal(t, []string{"ada@hospital.edu"}, gotTo)
	require.Contains(t, string(gotMsg), "Hi Ada Nguyen")
	require.Contains(t, string(gotMsg), "Subject: Verify your CareMesh account")
}

func TestVerificationEmailJobSkipsMalformedPayload(t *testing.T) {
	job := NewVerificationEmailJob(SMTPConfig{}, slog.Default(), nil)
	job.send = func(addr, from string, to []string, msg []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeVerificationEmail, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeVerificationEmail, []byte(`{"to":""}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestVerificationEmailJobSurfacesSendFailure(t *testing.T) {
	job := NewVerificationEmailJob(SMTPConfig{Host: "mail.local", Port: 1025}, slog.Default(), nil)
	sendErr := errors.New("connection refused")
	job.send = func(addr, from string, to []string, msg []byte) error {
		return sendErr
	}

	task, err := NewVerificationEmailTask(VerificationEmailPayload{To: "ada@hospital.edu"})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), sendErr)
}
