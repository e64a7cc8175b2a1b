package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	relocated []ObjectRelocated
	deleted   []ObjectDeleted
	buckets   []BucketDeleted
	err       error
}

func (r *recorder) ObjectRelocated(_ context.Context, ev ObjectRelocated) error {
	r.relocated = append(r.relocated, ev)
	return r.err
}

func (r *recorder) ObjectDeleted(_ context.Context, ev ObjectDeleted) error {
	r.deleted = append(r.deleted, ev)
	return r.err
}

func (r *recorder) BucketDeleted(_ context.Context, ev BucketDeleted) error {
	r.buckets = append(r.buckets, ev)
	return r.err
}

func TestBusFansOutToEveryListener(t *testing.T) {
	bus := NewBus(nil)
	failing := &recorder{err: errors.New("db down")}
	healthy := &recorder{}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	ctx := context.Background()
	bus.Relocated(ctx, ObjectRef{Bucket: "u1-photos", Key: "cat.png"}, ObjectRef{Bucket: "u1-vacation", Key: "cat.png"})
	bus.Deleted(ctx, ObjectRef{Bucket: "u1-photos", Key: "dog.png"})
	bus.BucketRemoved(ctx, "u1-old")

	for _, r := range []*recorder{failing, healthy} {
		assert.Len(t, r.relocated, 1)
		assert.Len(t, r.deleted, 1)
		assert.Len(t, r.buckets, 1)
	}
	assert.Equal(t, "u1-vacation", healthy.relocated[0].New.Bucket)
}

func TestNilBusDropsEvents(t *testing.T) {
	var bus *Bus
	bus.Deleted(context.Background(), ObjectRef{Bucket: "b", Key: "k"})
}
