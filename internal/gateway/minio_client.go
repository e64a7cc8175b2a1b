package gateway

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// MinIOClient adapts *minio.Client to the Client interface.
type MinIOClient struct {
	client *minio.Client
}

// NewMinIOClient constructs an adapter.
func NewMinIOClient(client *minio.Client) *MinIOClient {
	return &MinIOClient{client: client}
}

func (m *MinIOClient) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.client.MakeBucket(ctx, bucket, opts)
}

func (m *MinIOClient) RemoveBucket(ctx context.Context, bucket string) error {
	return m.client.RemoveBucket(ctx, bucket)
}

func (m *MinIOClient) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	return m.client.ListBuckets(ctx)
}

func (m *MinIOClient) SetBucketPolicy(ctx context.Context, bucket, policy string) error {
	return m.client.SetBucketPolicy(ctx, bucket, policy)
}

func (m *MinIOClient) GetBucketPolicy(ctx context.Context, bucket string) (string, error) {
	return m.client.GetBucketPolicy(ctx, bucket)
}

func (m *MinIOClient) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.client.PutObject(ctx, bucket, key, reader, size, opts)
}

// GetObject opens the object and stats it so that a missing key fails here
// instead of on the first Read.
func (m *MinIOClient) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, minio.ObjectInfo{}, err
	}
	return obj, info, nil
}

func (m *MinIOClient) StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.client.StatObject(ctx, bucket, key, opts)
}

func (m *MinIOClient) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return m.client.ListObjects(ctx, bucket, opts)
}

func (m *MinIOClient) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	return m.client.RemoveObject(ctx, bucket, key, opts)
}

func (m *MinIOClient) CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	return m.client.CopyObject(ctx, dst, src)
}

func (m *MinIOClient) PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error) {
	return m.client.PresignedGetObject(ctx, bucket, key, expiry, params)
}

var _ Client = (*MinIOClient)(nil)
