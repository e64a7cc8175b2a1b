package bucket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/gateway/gatewaytest"
	"github.com/endesomnia/cloud-sub000/internal/naming"
	"github.com/endesomnia/cloud-sub000/internal/policy"
)

func newTestService(t *testing.T) (*Service, *gatewaytest.Memory, *fakeUsage, *bucketEvents) {
	t.Helper()
	mem := gatewaytest.NewMemory()
	usage := &fakeUsage{}
	bus := events.NewBus(nil)
	rec := &bucketEvents{}
	bus.Subscribe(rec)
	gw := gateway.New(mem, "", time.Second, nil)
	return NewService(gw, naming.NewCodec("-", true, false), usage, bus, nil), mem, usage, rec
}

func TestCreateAndListBuckets(t *testing.T) {
	service, mem, _, _ := newTestService(t)

	created, err := service.CreateBucket(context.Background(), "u1", "documents", policy.ModePrivate)
	if err != nil {
		t.Fatalf("CreateBucket returned error: %v", err)
	}
	if created.Name != "documents" || created.PhysicalName != "u1-documents" {
		t.Fatalf("unexpected bucket %+v", created)
	}
	if mem.Policy("u1-documents") == "" {
		t.Fatalf("expected a policy to be attached")
	}

	mem.Seed("u2-documents", "x", "text/plain", []byte("x"))

	buckets, err := service.ListBuckets(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListBuckets returned error: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Name != "documents" {
		t.Fatalf("expected only u1's bucket by logical name, got %+v", buckets)
	}
}

func TestCreateBucketDuplicateName(t *testing.T) {
	service, _, _, _ := newTestService(t)

	if _, err := service.CreateBucket(context.Background(), "u1", "photos", policy.ModePrivate); err != nil {
		t.Fatalf("unexpected error creating bucket: %v", err)
	}

	if _, err := service.CreateBucket(context.Background(), "u1", "photos", policy.ModePrivate); !errors.Is(err, ErrBucketNameExists) {
		t.Fatalf("expected ErrBucketNameExists, got %v", err)
	}
}

func TestCreateBucketRejectsInvalidNameBeforeIO(t *testing.T) {
	service, mem, _, _ := newTestService(t)

	_, err := service.CreateBucket(context.Background(), "u1", "Bad_Name", policy.ModePrivate)
	if !errors.Is(err, apperr.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if mem.Calls("MakeBucket") != 0 {
		t.Fatalf("expected no store calls")
	}
}

func TestCreateBucketRollsBackWhenPolicyFails(t *testing.T) {
	service, mem, _, _ := newTestService(t)
	mem.FailAlways("SetBucketPolicy", errors.New("policy rejected"))

	_, err := service.CreateBucket(context.Background(), "u1", "photos", policy.ModePublic)
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if mem.Keys("u1-photos") != nil {
		t.Fatalf("expected bucket to be removed")
	}
}

func TestSetAccessAndGetBucket(t *testing.T) {
	service, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.CreateBucket(ctx, "u1", "site", policy.ModePrivate); err != nil {
		t.Fatalf("CreateBucket returned error: %v", err)
	}
	if _, err := service.SetAccess(ctx, "u1", "site", policy.ModePublic); err != nil {
		t.Fatalf("SetAccess returned error: %v", err)
	}

	got, err := service.GetBucket(ctx, "u1", "site")
	if err != nil {
		t.Fatalf("GetBucket returned error: %v", err)
	}
	if got.Access != policy.ModePublic {
		t.Fatalf("expected public access, got %s", got.Access)
	}

	if _, err := service.GetBucket(ctx, "u1", "missing"); !errors.Is(err, ErrBucketNotFound) {
		t.Fatalf("expected ErrBucketNotFound, got %v", err)
	}
	if _, err := service.SetAccess(ctx, "u1", "missing", policy.ModePublic); !errors.Is(err, ErrBucketNotFound) {
		t.Fatalf("expected ErrBucketNotFound, got %v", err)
	}
}

func TestDeleteBucketRemovesObjectsAndAccounts(t *testing.T) {
	service, mem, usage, rec := newTestService(t)
	ctx := context.Background()

	if _, err := service.CreateBucket(ctx, "u1", "temp", policy.ModePrivate); err != nil {
		t.Fatalf("CreateBucket returned error: %v", err)
	}
	mem.Seed("u1-temp", "a.png", "image/png", []byte("1234"))
	mem.Seed("u1-temp", "b.txt", "text/plain", []byte("12"))

	summary, err := service.DeleteBucket(ctx, "u1", "temp")
	if err != nil {
		t.Fatalf("DeleteBucket returned error: %v", err)
	}
	if summary.ObjectsRemoved != 2 || summary.BytesRemoved != 6 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if mem.Keys("u1-temp") != nil {
		t.Fatalf("expected bucket to be gone")
	}
	if len(usage.deleted) != 2 || usage.deleted[0].mime != "image/png" {
		t.Fatalf("expected per-object accounting, got %+v", usage.deleted)
	}
	if len(rec.buckets) != 1 || rec.buckets[0] != "u1-temp" {
		t.Fatalf("expected BucketDeleted event, got %v", rec.buckets)
	}
}

func TestDeleteMissingBucket(t *testing.T) {
	service, _, _, rec := newTestService(t)

	if _, err := service.DeleteBucket(context.Background(), "u1", "ghost"); !errors.Is(err, ErrBucketNotFound) {
		t.Fatalf("expected ErrBucketNotFound, got %v", err)
	}
	if len(rec.buckets) != 0 {
		t.Fatalf("expected no event")
	}
}

// --- fakes ----

type deletedObject struct {
	userID string
	size   int64
	mime   string
}

type fakeUsage struct {
	mu      sync.Mutex
	deleted []deletedObject
}

func (f *fakeUsage) OnDeleted(_ context.Context, userID string, size int64, mime string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, deletedObject{userID: userID, size: size, mime: mime})
}

type bucketEvents struct {
	buckets []string
}

func (b *bucketEvents) ObjectRelocated(context.Context, events.ObjectRelocated) error { return nil }

func (b *bucketEvents) ObjectDeleted(context.Context, events.ObjectDeleted) error { return nil }

func (b *bucketEvents) BucketDeleted(_ context.Context, ev events.BucketDeleted) error {
	b.buckets = append(b.buckets, ev.Bucket)
	return nil
}
