// Package usage keeps per-user storage and activity counters. Counters are
// driven only by upload, download and delete events and are never reconciled
// against the object store.
package usage

import (
	"context"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/config"
	"github.com/endesomnia/cloud-sub000/internal/metrics"
	"go.uber.org/zap"
)

const defaultTimeout = 3 * time.Second

type store interface {
	Apply(ctx context.Context, userID string, totalBytes int64, d Delta) error
	Get(ctx context.Context, userID string) (Record, bool, error)
}

// Accountant records usage events. Recording is best effort: failures are
// logged and counted but never returned, so a storage operation that already
// succeeded is not reported as failed.
type Accountant struct {
	store      store
	totalBytes int64
	timeout    time.Duration
	logger     *zap.Logger
	nowFunc    func() time.Time
}

// NewAccountant constructs an Accountant.
func NewAccountant(store store, cfg config.UsageConfig, logger *zap.Logger) *Accountant {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Accountant{
		store:      store,
		totalBytes: gbToBytes(cfg.TotalStorageGB),
		timeout:    timeout,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// OnUploaded records a stored object of size bytes.
func (a *Accountant) OnUploaded(ctx context.Context, userID string, size int64, mime string) {
	a.apply(ctx, "upload", userID, Delta{
		UsedBytes: size,
		Category:  Classify(mime),
		Uploaded:  1,
	})
}

// OnDownloaded records a served download.
func (a *Accountant) OnDownloaded(ctx context.Context, userID string) {
	a.apply(ctx, "download", userID, Delta{Downloaded: 1})
}

// OnDeleted records a removed object of size bytes.
func (a *Accountant) OnDeleted(ctx context.Context, userID string, size int64, mime string) {
	a.apply(ctx, "delete", userID, Delta{
		UsedBytes: -size,
		Category:  Classify(mime),
		Deleted:   1,
	})
}

// Stats returns userID's counters in GB. Users without activity get zero
// counters and the configured capacity.
func (a *Accountant) Stats(ctx context.Context, userID string) (Stats, error) {
	rec, found, err := a.store.Get(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	if !found {
		rec = Record{UserID: userID, TotalStorageBytes: a.totalBytes}
	}
	return rec.Stats(), nil
}

func (a *Accountant) apply(ctx context.Context, event, userID string, d Delta) {
	if a == nil || userID == "" {
		return
	}
	now := a.nowFunc()
	d.At = now
	d.Weekday = now.Weekday()

	// Detached so a client hanging up after the storage call does not drop the update.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	if err := a.store.Apply(ctx, userID, a.totalBytes, d); err != nil {
		metrics.UsageAccountingFailures.WithLabelValues(event).Inc()
		a.logger.Warn("usage accounting failed",
			zap.String("event", event),
			zap.String("user_id", userID),
			zap.Int64("bytes", d.UsedBytes),
			zap.Error(err),
		)
	}
}
