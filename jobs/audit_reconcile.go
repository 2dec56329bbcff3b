package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/caremesh/caremesh/internal/audit"
	"github.com/caremesh/caremesh/internal/docstore"
	jobmetrics "github.com/caremesh/caremesh/internal/jobs"
)

// AuditReconcileJob sweeps the emergency audit tier and replays entries
// whose primary write failed. Entries that replay cleanly are removed
// from the emergency collection; the rest stay for the next sweep.
type AuditReconcileJob struct {
	Store   docstore.Store
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditReconcileJob initialises the emergency-tier sweep handler.
func NewAuditReconcileJob(store docstore.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditReconcileJob {
	return &AuditReconcileJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep.
func (j *AuditReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("audit reconcile: handler not configured")
	}
	if j.Store == nil {
		return errors.New("audit reconcile: store not configured")
	}

	tracker := j.metrics().Track(TaskTypeAuditReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger()
	logger.Info("starting emergency tier sweep")

	stranded, err := j.Store.QueryByField(ctx, audit.CollectionEmergency, "status", "WRITE_FAILED")
	if err != nil {
		resultErr = err
		logger.Error("list emergency entries", slog.Any("error", err))
		return resultErr
	}

	recovered := 0
	for _, entry := range stranded {
		envelope, ok := entry["envelope"].(map[string]any)
		if !ok {
			continue
		}
		id, ok := envelope["id"].(string)
		if !ok || id == "" {
			continue
		}
		err := j.Store.Insert(ctx, audit.CollectionPrimary, id, docstore.Document(envelope))
		if err != nil && !errors.Is(err, docstore.ErrDuplicateKey) {
			// Primary still unhealthy; keep the entry and retry later.
			logger.Warn("replay into primary failed", slog.String("entry_id", id), slog.Any("error", err))
			continue
		}
		if err := j.Store.Delete(ctx, audit.CollectionEmergency, id); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			logger.Warn("remove reconciled emergency entry", slog.String("entry_id", id), slog.Any("error", err))
			continue
		}
		recovered++
	}
	j.metrics().AddReconciled(recovered)

	logger.Info("completed emergency tier sweep",
		slog.Int("stranded", len(stranded)),
		slog.Int("recovered", recovered),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *AuditReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeAuditReconcile))
	}
	return slog.Default().With(slog.String("job", TaskTypeAuditReconcile))
}

func (j *AuditReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *AuditReconcileJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
