package gateway_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/gateway/gatewaytest"
	"github.com/endesomnia/cloud-sub000/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ gateway.Client = (*gatewaytest.Memory)(nil)

func newGateway(t *testing.T) (*gateway.Gateway, *gatewaytest.Memory) {
	t.Helper()
	mem := gatewaytest.NewMemory()
	return gateway.New(mem, "", time.Second, nil), mem
}

func TestBucketLifecycle(t *testing.T) {
	gw, mem := newGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.CreateBucket(ctx, "u1-photos"))
	require.NoError(t, gw.CreateBucket(ctx, "u1-docs"))
	require.NoError(t, gw.CreateBucket(ctx, "u2-photos"))

	buckets, err := gw.ListBuckets(ctx, "u1-")
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "u1-docs", buckets[0].Name)
	assert.Equal(t, "u1-photos", buckets[1].Name)

	require.NoError(t, gw.SetBucketPolicy(ctx, "u1-photos", policy.Generate("u1-photos", policy.ModePrivate)))
	assert.Contains(t, mem.Policy("u1-photos"), `"Deny"`)

	require.NoError(t, gw.DeleteBucket(ctx, "u1-docs"))
	all, err := gw.ListBuckets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateBucketTwiceKeepsCode(t *testing.T) {
	gw, _ := newGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.CreateBucket(ctx, "u1-photos"))
	err := gw.CreateBucket(ctx, "u1-photos")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, "BucketAlreadyOwnedByYou", apperr.CodeOf(err))
}

func TestPutGetStreamsObject(t *testing.T) {
	gw, _ := newGateway(t)
	ctx := context.Background()
	require.NoError(t, gw.CreateBucket(ctx, "u1-photos"))

	payload := []byte("meow")
	stored, err := gw.PutObject(ctx, "u1-photos", "cat.png", bytes.NewReader(payload), int64(len(payload)), "image/png")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Size)
	assert.NotEmpty(t, stored.ETag)

	obj, err := gw.GetObject(ctx, "u1-photos", "cat.png")
	require.NoError(t, err)
	defer obj.Close()

	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, "image/png", obj.Info.ContentType)
}

func TestGetMissingObjectIsNotFound(t *testing.T) {
	gw, _ := newGateway(t)
	ctx := context.Background()
	require.NoError(t, gw.CreateBucket(ctx, "u1-photos"))

	_, err := gw.GetObject(ctx, "u1-photos", "ghost.txt")

	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))

	var e *apperr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "GetObject", e.Op)
	assert.Equal(t, "ghost.txt", e.Key)
}

func TestListObjectsIsLazyAndRestartable(t *testing.T) {
	gw, mem := newGateway(t)
	ctx := context.Background()
	for _, key := range []string{"a.txt", "b.txt", "dir/c.txt"} {
		mem.Seed("u1-docs", key, "text/plain", []byte(key))
	}

	it := gw.ListObjects(ctx, "u1-docs", "")
	require.True(t, it.Next())
	assert.Equal(t, "a.txt", it.Object().Key)
	it.Close()
	assert.False(t, it.Next())

	all, err := gateway.Collect(gw.ListObjects(ctx, "u1-docs", ""))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "dir/c.txt", all[2].Key)

	sub, err := gateway.Collect(gw.ListObjects(ctx, "u1-docs", "dir/"))
	require.NoError(t, err)
	assert.Len(t, sub, 1)
}

func TestListObjectsMissingBucketFails(t *testing.T) {
	gw, _ := newGateway(t)

	_, err := gateway.Collect(gw.ListObjects(context.Background(), "nope", ""))

	require.Error(t, err)
	assert.Equal(t, "NoSuchBucket", apperr.CodeOf(err))
}

func TestCopyAndDelete(t *testing.T) {
	gw, mem := newGateway(t)
	ctx := context.Background()
	mem.Seed("src-bucket", "k", "text/plain", []byte("v1"))
	mem.Seed("dst-bucket", "k", "text/plain", []byte("old"))

	require.NoError(t, gw.CopyObject(ctx, "dst-bucket", "k", "src-bucket", "k"))
	require.NoError(t, gw.DeleteObject(ctx, "src-bucket", "k"))

	assert.False(t, mem.Has("src-bucket", "k"))
	obj, err := gw.GetObject(ctx, "dst-bucket", "k")
	require.NoError(t, err)
	defer obj.Close()
	body, _ := io.ReadAll(obj)
	assert.Equal(t, "v1", string(body))
}

func TestCallerDeadlineIsHonoured(t *testing.T) {
	gw, mem := newGateway(t)
	mem.Seed("u1-docs", "a.txt", "text/plain", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gw.DeleteObject(ctx, "u1-docs", "a.txt")
	require.Error(t, err)
	assert.Equal(t, "Canceled", apperr.CodeOf(err))
	assert.True(t, mem.Has("u1-docs", "a.txt"))
}

func TestPresignGet(t *testing.T) {
	gw, mem := newGateway(t)
	mem.Seed("u1-docs", "a.txt", "text/plain", []byte("a"))

	link, err := gw.PresignGet(context.Background(), "u1-docs", "a.txt", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.Contains(link, "/u1-docs/a.txt"))
	assert.Contains(t, link, "X-Amz-Expires=600")
}
