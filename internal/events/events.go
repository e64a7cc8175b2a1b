// Package events carries storage mutations to interested parties, such as the
// star/share overlay, after the object store has accepted them.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ObjectRef names a physical object.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ObjectRelocated is emitted after a move or rename completes.
type ObjectRelocated struct {
	Old ObjectRef
	New ObjectRef
}

// ObjectDeleted is emitted after an object is removed.
type ObjectDeleted struct {
	Ref ObjectRef
}

// BucketDeleted is emitted after a bucket and its objects are removed.
type BucketDeleted struct {
	Bucket string
}

// Listener receives storage events. Returned errors are logged by the Bus;
// the storage mutation has already happened and is not undone.
type Listener interface {
	ObjectRelocated(ctx context.Context, ev ObjectRelocated) error
	ObjectDeleted(ctx context.Context, ev ObjectDeleted) error
	BucketDeleted(ctx context.Context, ev BucketDeleted) error
}

// Bus fans events out to listeners synchronously. A nil *Bus drops events.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *zap.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers l for all subsequent events.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Relocated publishes an ObjectRelocated event.
func (b *Bus) Relocated(ctx context.Context, from, to ObjectRef) {
	b.each(func(l Listener) error {
		return l.ObjectRelocated(ctx, ObjectRelocated{Old: from, New: to})
	}, "object relocated", zap.String("from", from.Bucket+"/"+from.Key), zap.String("to", to.Bucket+"/"+to.Key))
}

// Deleted publishes an ObjectDeleted event.
func (b *Bus) Deleted(ctx context.Context, ref ObjectRef) {
	b.each(func(l Listener) error {
		return l.ObjectDeleted(ctx, ObjectDeleted{Ref: ref})
	}, "object deleted", zap.String("object", ref.Bucket+"/"+ref.Key))
}

// BucketRemoved publishes a BucketDeleted event.
func (b *Bus) BucketRemoved(ctx context.Context, bucket string) {
	b.each(func(l Listener) error {
		return l.BucketDeleted(ctx, BucketDeleted{Bucket: bucket})
	}, "bucket deleted", zap.String("bucket", bucket))
}

func (b *Bus) each(fn func(Listener) error, event string, fields ...zap.Field) {
	if b == nil {
		return
	}
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.RUnlock()

	for _, l := range listeners {
		if err := fn(l); err != nil {
			b.logger.Warn("event listener failed", append(fields, zap.String("event", event), zap.Error(err))...)
		}
	}
}
