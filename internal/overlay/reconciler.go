package overlay

import (
	"context"

	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/endesomnia/cloud-sub000/internal/metrics"
	"go.uber.org/zap"
)

type reconcileStore interface {
	Relocate(ctx context.Context, old, updated events.ObjectRef) (int64, error)
	Forget(ctx context.Context, ref events.ObjectRef) (int64, error)
	ForgetBucket(ctx context.Context, bucketName string) (int64, error)
}

// Reconciler rewrites stars and shares after storage mutations. It is only
// subscribed when reconciliation is enabled; otherwise rows keep pointing at
// the old location.
type Reconciler struct {
	store  reconcileStore
	logger *zap.Logger
}

var _ events.Listener = (*Reconciler)(nil)

// NewReconciler constructs a Reconciler over store.
func NewReconciler(store reconcileStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger}
}

func (r *Reconciler) ObjectRelocated(ctx context.Context, ev events.ObjectRelocated) error {
	n, err := r.store.Relocate(ctx, ev.Old, ev.New)
	if err != nil {
		return err
	}
	r.record("relocated", n)
	return nil
}

func (r *Reconciler) ObjectDeleted(ctx context.Context, ev events.ObjectDeleted) error {
	n, err := r.store.Forget(ctx, ev.Ref)
	if err != nil {
		return err
	}
	r.record("deleted", n)
	return nil
}

func (r *Reconciler) BucketDeleted(ctx context.Context, ev events.BucketDeleted) error {
	n, err := r.store.ForgetBucket(ctx, ev.Bucket)
	if err != nil {
		return err
	}
	r.record("bucket_deleted", n)
	return nil
}

func (r *Reconciler) record(event string, rows int64) {
	if rows == 0 {
		return
	}
	metrics.OverlayReconciled.WithLabelValues(event).Add(float64(rows))
	r.logger.Debug("overlay reconciled", zap.String("event", event), zap.Int64("rows", rows))
}
