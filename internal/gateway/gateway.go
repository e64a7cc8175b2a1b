// Package gateway owns every call made against the object store. Errors are
// wrapped as apperr storage errors that keep the failing operation's name.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/metrics"
	"github.com/endesomnia/cloud-sub000/internal/policy"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// DefaultContentType is reported for objects stored without a content type.
const DefaultContentType = "application/octet-stream"

// Client is the subset of the object store SDK the gateway depends on.
type Client interface {
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	RemoveBucket(ctx context.Context, bucket string) error
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	SetBucketPolicy(ctx context.Context, bucket, policy string) error
	GetBucketPolicy(ctx context.Context, bucket string) (string, error)
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// BucketSummary describes a physical bucket.
type BucketSummary struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ObjectSummary describes a stored object.
type ObjectSummary struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
	ContentType  string    `json:"content_type,omitempty"`
}

// Object is a streamed object body. Close must be called.
type Object struct {
	io.ReadCloser
	Info ObjectSummary
}

// Gateway wraps the object store SDK.
type Gateway struct {
	client  Client
	region  string
	timeout time.Duration
	logger  *zap.Logger
}

// New constructs a Gateway. timeout bounds calls whose context carries no
// earlier deadline; zero disables the default.
func New(client Client, region string, timeout time.Duration, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{client: client, region: region, timeout: timeout, logger: logger}
}

// CreateBucket creates a physical bucket.
func (g *Gateway) CreateBucket(ctx context.Context, bucket string) error {
	const op = "CreateBucket"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	err := g.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: g.region})
	return g.finish(op, bucket, "", start, err)
}

// DeleteBucket removes an empty physical bucket.
func (g *Gateway) DeleteBucket(ctx context.Context, bucket string) error {
	const op = "DeleteBucket"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	err := g.client.RemoveBucket(ctx, bucket)
	return g.finish(op, bucket, "", start, err)
}

// ListBuckets returns buckets whose name starts with prefix. An empty prefix lists all.
func (g *Gateway) ListBuckets(ctx context.Context, prefix string) ([]BucketSummary, error) {
	const op = "ListBuckets"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	infos, err := g.client.ListBuckets(ctx)
	if err := g.finish(op, "", "", start, err); err != nil {
		return nil, err
	}

	buckets := make([]BucketSummary, 0, len(infos))
	for _, info := range infos {
		if prefix != "" && !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		buckets = append(buckets, BucketSummary{Name: info.Name, CreatedAt: info.CreationDate})
	}
	return buckets, nil
}

// SetBucketPolicy attaches doc to bucket, replacing any previous policy.
func (g *Gateway) SetBucketPolicy(ctx context.Context, bucket string, doc policy.Document) error {
	const op = "SetBucketPolicy"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	err := g.client.SetBucketPolicy(ctx, bucket, doc.JSON())
	return g.finish(op, bucket, "", start, err)
}

// BucketPolicy returns the raw policy attached to bucket.
func (g *Gateway) BucketPolicy(ctx context.Context, bucket string) (string, error) {
	const op = "GetBucketPolicy"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	raw, err := g.client.GetBucketPolicy(ctx, bucket)
	if err := g.finish(op, bucket, "", start, err); err != nil {
		return "", err
	}
	return raw, nil
}

// PutObject streams size bytes from reader into bucket/key. A negative size
// lets the SDK fall back to multipart streaming.
func (g *Gateway) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (ObjectSummary, error) {
	const op = "PutObject"
	if contentType == "" {
		contentType = DefaultContentType
	}

	start := time.Now()
	info, err := g.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err := g.finish(op, bucket, key, start, err); err != nil {
		return ObjectSummary{}, err
	}

	stored := info.Size
	if stored <= 0 {
		stored = size
	}
	return ObjectSummary{
		Key:          key,
		Size:         stored,
		LastModified: info.LastModified,
		ETag:         info.ETag,
		ContentType:  contentType,
	}, nil
}

// GetObject opens bucket/key for streaming. The returned body holds the call's
// context until closed.
func (g *Gateway) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	const op = "GetObject"
	ctx, cancel := context.WithCancel(ctx)

	start := time.Now()
	body, info, err := g.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err := g.finish(op, bucket, key, start, err); err != nil {
		cancel()
		return nil, err
	}

	return &Object{
		ReadCloser: &cancelOnClose{ReadCloser: body, cancel: cancel},
		Info:       summarize(info),
	}, nil
}

// StatObject returns metadata for bucket/key.
func (g *Gateway) StatObject(ctx context.Context, bucket, key string) (ObjectSummary, error) {
	const op = "StatObject"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	info, err := g.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err := g.finish(op, bucket, key, start, err); err != nil {
		return ObjectSummary{}, err
	}
	return summarize(info), nil
}

// ListObjects starts a recursive listing of bucket under prefix. The iterator
// is consumed once; call ListObjects again to restart.
func (g *Gateway) ListObjects(ctx context.Context, bucket, prefix string) *ObjectIterator {
	ctx, cancel := context.WithCancel(ctx)
	ch := g.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	return &ObjectIterator{gw: g, bucket: bucket, ch: ch, cancel: cancel, start: time.Now()}
}

// DeleteObject removes bucket/key.
func (g *Gateway) DeleteObject(ctx context.Context, bucket, key string) error {
	const op = "DeleteObject"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	err := g.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	return g.finish(op, bucket, key, start, err)
}

// CopyObject copies srcBucket/srcKey onto dstBucket/dstKey, overwriting it.
func (g *Gateway) CopyObject(ctx context.Context, dstBucket, dstKey, srcBucket, srcKey string) error {
	const op = "CopyObject"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	_, err := g.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	return g.finish(op, srcBucket, srcKey, start, err)
}

// PresignGet returns a time-limited download URL for bucket/key.
func (g *Gateway) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	const op = "PresignGet"
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	u, err := g.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err := g.finish(op, bucket, key, start, err); err != nil {
		return "", err
	}
	return u.String(), nil
}

// bound applies the default timeout unless ctx already expires sooner.
func (g *Gateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= g.timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Gateway) finish(op, bucket, key string, start time.Time, err error) error {
	metrics.ObserveGateway(op, start, err)
	if err == nil {
		return nil
	}
	code := errorCode(err)
	g.logger.Debug("object store call failed",
		zap.String("op", op),
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("code", code),
		zap.Error(err),
	)
	return apperr.Storage(op, bucket, key, code, err)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code
	}
	return ""
}

func summarize(info minio.ObjectInfo) ObjectSummary {
	contentType := info.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	return ObjectSummary{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ETag:         info.ETag,
		ContentType:  contentType,
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
