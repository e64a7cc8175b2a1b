// Package transfer implements move and rename on top of an object store that
// only offers copy and delete.
//
// Both operations copy first and delete second. They are not atomic: if the
// copy succeeds and the delete does not, the object exists twice and the caller
// gets a Partial error rather than success or plain failure. Re-running the
// same request is safe because the copy overwrites the destination. A retry
// whose source is already gone but whose destination exists completes, since
// a delete reported as failed may still have been applied by the store.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/metrics"
	"go.uber.org/zap"
)

const defaultDeleteTimeout = 10 * time.Second

// ErrSameObject is returned when source and destination name the same object.
var ErrSameObject = errors.New("source and destination are the same object")

// State is the position of a transfer in its copy-then-delete sequence.
type State int

const (
	StatePending State = iota
	StateCopying
	StateCopiedPendingDelete
	StateComplete
	// StateCopyFailed is terminal; the source is untouched.
	StateCopyFailed
	// StateDeletePendingRetryOrOrphan is terminal; source and destination both exist.
	StateDeletePendingRetryOrOrphan
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCopying:
		return "copying"
	case StateCopiedPendingDelete:
		return "copied_pending_delete"
	case StateComplete:
		return "complete"
	case StateCopyFailed:
		return "copy_failed"
	case StateDeletePendingRetryOrOrphan:
		return "delete_pending_retry_or_orphan"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Kind distinguishes cross-bucket moves from in-bucket renames.
type Kind string

const (
	KindMove   Kind = "move"
	KindRename Kind = "rename"
)

// Result describes where a transfer stopped.
type Result struct {
	Kind   Kind             `json:"kind"`
	State  State            `json:"state"`
	Source events.ObjectRef `json:"source"`
	Target events.ObjectRef `json:"target"`
}

type objectStore interface {
	CopyObject(ctx context.Context, dstBucket, dstKey, srcBucket, srcKey string) error
	DeleteObject(ctx context.Context, bucket, key string) error
	StatObject(ctx context.Context, bucket, key string) (gateway.ObjectSummary, error)
}

// Options configures a Coordinator. Zero values are usable.
type Options struct {
	// DeleteTimeout bounds the delete step; expiry counts as a delete failure.
	DeleteTimeout time.Duration
	// Locks serializes transfers touching the same keys when non-nil.
	Locks  *LockArena
	Events *events.Bus
	Logger *zap.Logger
}

// Coordinator sequences copy and delete calls for move and rename.
type Coordinator struct {
	store         objectStore
	deleteTimeout time.Duration
	locks         *LockArena
	events        *events.Bus
	logger        *zap.Logger
}

// NewCoordinator constructs a Coordinator over store.
func NewCoordinator(store objectStore, opts Options) *Coordinator {
	if opts.DeleteTimeout <= 0 {
		opts.DeleteTimeout = defaultDeleteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Coordinator{
		store:         store,
		deleteTimeout: opts.DeleteTimeout,
		locks:         opts.Locks,
		events:        opts.Events,
		logger:        opts.Logger,
	}
}

// Move relocates key from srcBucket to dstBucket under the same key.
func (c *Coordinator) Move(ctx context.Context, srcBucket, dstBucket, key string) (Result, error) {
	return c.run(ctx, KindMove,
		events.ObjectRef{Bucket: srcBucket, Key: key},
		events.ObjectRef{Bucket: dstBucket, Key: key},
	)
}

// Rename changes oldKey to newKey inside bucket.
func (c *Coordinator) Rename(ctx context.Context, bucket, oldKey, newKey string) (Result, error) {
	return c.run(ctx, KindRename,
		events.ObjectRef{Bucket: bucket, Key: oldKey},
		events.ObjectRef{Bucket: bucket, Key: newKey},
	)
}

func (c *Coordinator) run(ctx context.Context, kind Kind, src, dst events.ObjectRef) (res Result, err error) {
	res = Result{Kind: kind, State: StatePending, Source: src, Target: dst}
	defer func() {
		metrics.TransfersTotal.WithLabelValues(string(kind), res.State.String()).Inc()
	}()

	if err := validate(src, dst); err != nil {
		return res, err
	}

	if c.locks != nil {
		release, err := c.locks.Acquire(ctx, src, dst)
		if err != nil {
			res.State = StateCopyFailed
			return res, c.failed(kind, src, "waiting for key lock", err)
		}
		defer release()
	}

	res.State = StateCopying
	if err := c.store.CopyObject(ctx, dst.Bucket, dst.Key, src.Bucket, src.Key); err != nil {
		if apperr.IsNotFound(err) && c.landed(ctx, dst) {
			c.logger.Info("transfer already applied",
				zap.String("kind", string(kind)),
				zap.String("source", src.Bucket+"/"+src.Key),
				zap.String("target", dst.Bucket+"/"+dst.Key),
			)
			res.State = StateComplete
			c.events.Relocated(ctx, src, dst)
			return res, nil
		}
		res.State = StateCopyFailed
		return res, c.failed(kind, src, "", err)
	}
	res.State = StateCopiedPendingDelete

	deleteCtx, cancel := context.WithTimeout(ctx, c.deleteTimeout)
	defer cancel()
	if err := c.store.DeleteObject(deleteCtx, src.Bucket, src.Key); err != nil {
		res.State = StateDeletePendingRetryOrOrphan
		c.logger.Warn("transfer left a duplicate object",
			zap.String("kind", string(kind)),
			zap.String("source", src.Bucket+"/"+src.Key),
			zap.String("target", dst.Bucket+"/"+dst.Key),
			zap.Error(err),
		)
		return res, c.partial(kind, src, err)
	}

	res.State = StateComplete
	c.events.Relocated(ctx, src, dst)
	return res, nil
}

// landed reports whether dst exists after the source turned up missing.
func (c *Coordinator) landed(ctx context.Context, dst events.ObjectRef) bool {
	_, err := c.store.StatObject(ctx, dst.Bucket, dst.Key)
	return err == nil
}

func (c *Coordinator) failed(kind Kind, src events.ObjectRef, reason string, cause error) error {
	k := apperr.KindMoveFailed
	if kind == KindRename {
		k = apperr.KindRenameFailed
	}
	return &apperr.Error{Kind: k, Op: string(kind), Bucket: src.Bucket, Key: src.Key, Reason: reason, Err: cause}
}

func (c *Coordinator) partial(kind Kind, src events.ObjectRef, cause error) error {
	k := apperr.KindPartialMove
	if kind == KindRename {
		k = apperr.KindPartialRename
	}
	return &apperr.Error{
		Kind:   k,
		Op:     string(kind),
		Bucket: src.Bucket,
		Key:    src.Key,
		Reason: "copied but source not deleted",
		Err:    cause,
	}
}

func validate(src, dst events.ObjectRef) error {
	switch {
	case src.Bucket == "" || dst.Bucket == "":
		return apperr.InvalidName("", "bucket name is empty")
	case src.Key == "" || dst.Key == "":
		return apperr.InvalidName("", "object key is empty")
	case src == dst:
		return ErrSameObject
	}
	return nil
}
