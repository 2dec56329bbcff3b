package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/caremesh/caremesh/internal/jobs"
)

// SMTPConfig locates the outbound mail relay.
type SMTPConfig struct {
	Host string
	Port int
	From string
}

// VerificationEmailJob delivers verification emails through SMTP.
type VerificationEmailJob struct {
	SMTP    SMTPConfig
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics

	// send is swapped out in tests.
	send func(addr, from string, to []string, msg []byte) error
}

// NewVerificationEmailJob initialises the verification email handler.
func NewVerificationEmailJob(cfg SMTPConfig, logger *slog.Logger, metrics *jobmetrics.Metrics) *VerificationEmailJob {
	return &VerificationEmailJob{
		SMTP:    cfg,
		Logger:  logger,
		Metrics: metrics,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Handle executes the mail delivery.
func (j *VerificationEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("verification email: handler not configured")
	}
	var payload VerificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeVerificationEmail)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	addr := fmt.Sprintf("%s:%d", j.SMTP.Host, j.SMTP.Port)
	msg := buildVerificationMessage(j.SMTP.From, payload)
	if err := j.send(addr, j.SMTP.From, []string{payload.To}, msg); err != nil {
		resultErr = fmt.Errorf("jobs: send verification email: %w", err)
		j.logger().Error("send verification email", slog.String("to", payload.To), slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("sent verification email", slog.String("to", payload.To))
	return resultErr
}

func buildVerificationMessage(from string, payload VerificationEmailPayload) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", payload.To)
	b.WriteString("Subject: Verify your CareMesh account\r\n")
	b.WriteString("\r\n")
	name := payload.DisplayName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", name)
	b.WriteString("Please verify your email address to activate your account.\r\n")
	return []byte(b.String())
}

func (j *VerificationEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeVerificationEmail))
	}
	return slog.Default().With(slog.String("job", TaskTypeVerificationEmail))
}

func (j *VerificationEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
