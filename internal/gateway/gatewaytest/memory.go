// Package gatewaytest provides an in-memory object store implementing
// gateway.Client, with per-operation failure injection.
package gatewaytest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// FailFunc decides whether an operation on bucket/key should fail.
type FailFunc func(bucket, key string) error

type object struct {
	data        []byte
	contentType string
	modified    time.Time
	etag        string
}

type bucket struct {
	created time.Time
	policy  string
	objects map[string]object
}

// Memory is a goroutine-safe in-memory object store.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	fail    map[string]FailFunc
	calls   map[string]int
	now     func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		buckets: make(map[string]*bucket),
		fail:    make(map[string]FailFunc),
		calls:   make(map[string]int),
		now:     time.Now,
	}
}

// FailOn makes every call to op (e.g. "RemoveObject") consult fn first.
func (m *Memory) FailOn(op string, fn FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = fn
}

// FailAlways makes every call to op return err.
func (m *Memory) FailAlways(op string, err error) {
	m.FailOn(op, func(string, string) error { return err })
}

// Heal removes the failure hook for op.
func (m *Memory) Heal(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fail, op)
}

// Calls reports how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Keys returns the sorted keys stored in name, or nil when it does not exist.
func (m *Memory) Keys(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		return nil
	}
	return sortedKeys(b, "")
}

// Has reports whether name/key exists.
func (m *Memory) Has(name, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		return false
	}
	_, ok = b.objects[key]
	return ok
}

// Policy returns the raw policy attached to name.
func (m *Memory) Policy(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[name]; ok {
		return b.policy
	}
	return ""
}

// Seed stores data under name/key, creating the bucket if needed.
func (m *Memory) Seed(name, key, contentType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		b = &bucket{created: m.now(), objects: make(map[string]object)}
		m.buckets[name] = b
	}
	b.objects[key] = newObject(data, contentType, m.now())
}

func (m *Memory) enter(ctx context.Context, op, bucketName, key string) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if fn, ok := m.fail[op]; ok {
		if err := fn(bucketName, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) MakeBucket(ctx context.Context, name string, _ minio.MakeBucketOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "MakeBucket", name, ""); err != nil {
		return err
	}
	if _, ok := m.buckets[name]; ok {
		return errResponse(http.StatusConflict, "BucketAlreadyOwnedByYou", name, "")
	}
	m.buckets[name] = &bucket{created: m.now(), objects: make(map[string]object)}
	return nil
}

func (m *Memory) RemoveBucket(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "RemoveBucket", name, ""); err != nil {
		return err
	}
	b, ok := m.buckets[name]
	if !ok {
		return errResponse(http.StatusNotFound, "NoSuchBucket", name, "")
	}
	if len(b.objects) > 0 {
		return errResponse(http.StatusConflict, "BucketNotEmpty", name, "")
	}
	delete(m.buckets, name)
	return nil
}

func (m *Memory) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListBuckets", "", ""); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	infos := make([]minio.BucketInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, minio.BucketInfo{Name: name, CreationDate: m.buckets[name].created})
	}
	return infos, nil
}

func (m *Memory) SetBucketPolicy(ctx context.Context, name, policy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "SetBucketPolicy", name, ""); err != nil {
		return err
	}
	b, ok := m.buckets[name]
	if !ok {
		return errResponse(http.StatusNotFound, "NoSuchBucket", name, "")
	}
	b.policy = policy
	return nil
}

func (m *Memory) GetBucketPolicy(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetBucketPolicy", name, ""); err != nil {
		return "", err
	}
	b, ok := m.buckets[name]
	if !ok {
		return "", errResponse(http.StatusNotFound, "NoSuchBucket", name, "")
	}
	return b.policy, nil
}

func (m *Memory) PutObject(ctx context.Context, name, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	// Read outside the lock; readers may block.
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if size >= 0 && int64(len(data)) != size {
		return minio.UploadInfo{}, fmt.Errorf("short body: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "PutObject", name, key); err != nil {
		return minio.UploadInfo{}, err
	}
	b, ok := m.buckets[name]
	if !ok {
		return minio.UploadInfo{}, errResponse(http.StatusNotFound, "NoSuchBucket", name, key)
	}
	obj := newObject(data, opts.ContentType, m.now())
	b.objects[key] = obj
	return minio.UploadInfo{Bucket: name, Key: key, ETag: obj.etag, Size: int64(len(data)), LastModified: obj.modified}, nil
}

func (m *Memory) GetObject(ctx context.Context, name, key string, _ minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetObject", name, key); err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	obj, err := m.lookup(name, key)
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	data := append([]byte(nil), obj.data...)
	return io.NopCloser(bytes.NewReader(data)), info(key, obj), nil
}

func (m *Memory) StatObject(ctx context.Context, name, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "StatObject", name, key); err != nil {
		return minio.ObjectInfo{}, err
	}
	obj, err := m.lookup(name, key)
	if err != nil {
		return minio.ObjectInfo{}, err
	}
	return info(key, obj), nil
}

func (m *Memory) ListObjects(ctx context.Context, name string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	m.mu.Lock()
	var snapshot []minio.ObjectInfo
	if err := m.enter(ctx, "ListObjects", name, ""); err != nil {
		snapshot = []minio.ObjectInfo{{Err: err}}
	} else if b, ok := m.buckets[name]; !ok {
		snapshot = []minio.ObjectInfo{{Err: errResponse(http.StatusNotFound, "NoSuchBucket", name, "")}}
	} else {
		for _, key := range sortedKeys(b, opts.Prefix) {
			snapshot = append(snapshot, info(key, b.objects[key]))
		}
	}
	m.mu.Unlock()

	ch := make(chan minio.ObjectInfo)
	go func() {
		defer close(ch)
		for _, item := range snapshot {
			select {
			case ch <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (m *Memory) RemoveObject(ctx context.Context, name, key string, _ minio.RemoveObjectOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "RemoveObject", name, key); err != nil {
		return err
	}
	b, ok := m.buckets[name]
	if !ok {
		return errResponse(http.StatusNotFound, "NoSuchBucket", name, key)
	}
	delete(b.objects, key)
	return nil
}

func (m *Memory) CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "CopyObject", src.Bucket, src.Object); err != nil {
		return minio.UploadInfo{}, err
	}
	obj, err := m.lookup(src.Bucket, src.Object)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	target, ok := m.buckets[dst.Bucket]
	if !ok {
		return minio.UploadInfo{}, errResponse(http.StatusNotFound, "NoSuchBucket", dst.Bucket, dst.Object)
	}
	copied := newObject(obj.data, obj.contentType, m.now())
	target.objects[dst.Object] = copied
	return minio.UploadInfo{Bucket: dst.Bucket, Key: dst.Object, ETag: copied.etag, Size: int64(len(copied.data))}, nil
}

func (m *Memory) PresignedGetObject(ctx context.Context, name, key string, expiry time.Duration, _ url.Values) (*url.URL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, "PresignedGetObject", name, key); err != nil {
		return nil, err
	}
	u := &url.URL{Scheme: "http", Host: "memory.local", Path: "/" + name + "/" + key}
	u.RawQuery = url.Values{"X-Amz-Expires": []string{fmt.Sprintf("%d", int(expiry.Seconds()))}}.Encode()
	return u, nil
}

func (m *Memory) lookup(name, key string) (object, error) {
	b, ok := m.buckets[name]
	if !ok {
		return object{}, errResponse(http.StatusNotFound, "NoSuchBucket", name, key)
	}
	obj, ok := b.objects[key]
	if !ok {
		return object{}, errResponse(http.StatusNotFound, "NoSuchKey", name, key)
	}
	return obj, nil
}

func newObject(data []byte, contentType string, now time.Time) object {
	sum := md5.Sum(data)
	return object{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modified:    now,
		etag:        hex.EncodeToString(sum[:]),
	}
}

func info(key string, obj object) minio.ObjectInfo {
	return minio.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		ETag:         obj.etag,
		ContentType:  obj.contentType,
	}
}

func sortedKeys(b *bucket, prefix string) []string {
	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func errResponse(status int, code, name, key string) error {
	return minio.ErrorResponse{
		StatusCode: status,
		Code:       code,
		Message:    code,
		BucketName: name,
		Key:        key,
	}
}
