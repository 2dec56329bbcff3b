package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/caremesh/caremesh/internal/docstore"
)

// Collections written by the tiered cascade.
const (
	CollectionPrimary   = "audit_logs"
	CollectionBackup    = "audit_logs_backup"
	CollectionEmergency = "audit_logs_emergency"
)

const (
	sourceTag         = "caremesh-backend"
	statusWriteFailed = "WRITE_FAILED"
)

// RecorderConfig carries recorder settings resolved once at startup.
type RecorderConfig struct {
	// Enabled gates all durable writes. When false Record builds no
	// envelope and reports success.
	Enabled bool
	// Environment tags every envelope (development, production, ...).
	Environment string
}

// Recorder writes compliance entries through a three-tier cascade:
// primary and backup collections first, an emergency collection when
// either fails, and a critical operational log when even that fails.
// Record returns an error on any cascade failure so callers can decide
// whether the action being logged must be reconsidered.
type Recorder struct {
	store     docstore.Store
	logger    *slog.Logger
	cfg       RecorderConfig
	now       func() time.Time
	onFailure func()
}

// NewRecorder constructs a Recorder.
func NewRecorder(store docstore.Store, logger *slog.Logger, cfg RecorderConfig) *Recorder {
	return &Recorder{store: store, logger: logger, cfg: cfg, now: time.Now}
}

// OnWriteFailure registers a callback invoked once per failed cascade
// write, after the emergency tier has been attempted.
func (r *Recorder) OnWriteFailure(fn func()) {
	r.onFailure = fn
}

// Record persists one audit event. It never mutates event.Details.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if !r.cfg.Enabled {
		return nil
	}

	id := uuid.NewString()
	timestamp := r.now().UTC().Format(time.RFC3339Nano)
	envelope := docstore.Document{
		"id":           id,
		"timestamp":    timestamp,
		"action":       string(event.Action),
		"actorId":      event.ActorID,
		"resourceType": event.ResourceType,
		"resourceId":   event.ResourceID,
		"details":      Sanitize(event.Details),
		"source":       sourceTag,
		"environment":  r.cfg.Environment,
	}

	digest, err := envelopeDigest(envelope)
	if err != nil {
		return fmt.Errorf("audit: digest envelope: %w", err)
	}
	backup := docstore.Document{
		"timestamp":    timestamp,
		"action":       string(event.Action),
		"actorId":      event.ActorID,
		"resourceType": event.ResourceType,
		"resourceId":   event.ResourceID,
		"digest":       digest,
	}

	// Primary and backup are independent writes; both are attempted
	// even when one fails.
	var group errgroup.Group
	group.Go(func() error {
		return r.store.Insert(ctx, CollectionPrimary, id, envelope)
	})
	group.Go(func() error {
		return r.store.Insert(ctx, CollectionBackup, id, backup)
	})
	writeErr := group.Wait()
	if writeErr == nil {
		return nil
	}

	if r.onFailure != nil {
		r.onFailure()
	}

	emergency := docstore.Document{
		"timestamp": timestamp,
		"envelope":  envelope,
		"error":     writeErr.Error(),
		"status":    statusWriteFailed,
	}
	if emErr := r.store.Insert(ctx, CollectionEmergency, id, emergency); emErr != nil {
		// Terminal failure mode. Nothing further is attempted; the
		// condition must be impossible to miss operationally.
		r.logger.Error("audit cascade exhausted, entry lost",
			slog.String("action", string(event.Action)),
			slog.String("entry_id", id),
			slog.Any("write_error", writeErr),
			slog.Any("emergency_error", emErr),
		)
	}
	return fmt.Errorf("audit: record %s: %w", event.Action, writeErr)
}

func envelopeDigest(envelope docstore.Document) (string, error) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
