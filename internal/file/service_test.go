package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/bucket"
	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/gateway/gatewaytest"
	"github.com/endesomnia/cloud-sub000/internal/naming"
	"github.com/endesomnia/cloud-sub000/internal/transfer"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service *Service
	mem     *gatewaytest.Memory
	usage   *fakeUsage
	deleted *deleteRecorder
}

func newFixture(t *testing.T, maxSize int64, codec naming.Codec) fixture {
	t.Helper()
	mem := gatewaytest.NewMemory()
	mem.Seed("u1-photos", "cat.png", "image/png", []byte("meow"))
	mem.Seed("u1-vacation", "beach.jpg", "image/jpeg", []byte("sand"))

	gw := gateway.New(mem, "", time.Second, nil)
	bus := events.NewBus(nil)
	rec := &deleteRecorder{}
	bus.Subscribe(rec)
	usage := &fakeUsage{}

	service := NewService(Options{
		Gateway:     gw,
		Mover:       transfer.NewCoordinator(gw, transfer.Options{Events: bus}),
		Codec:       codec,
		Usage:       usage,
		Events:      bus,
		MaxFileSize: maxSize,
	})
	return fixture{service: service, mem: mem, usage: usage, deleted: rec}
}

func defaultCodec() naming.Codec {
	return naming.NewCodec("-", true, false)
}

func TestUploadStoresObjectAndRecordsUsage(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	obj, err := f.service.Upload(context.Background(), "u1", "photos", "notes.txt", strings.NewReader("hello world"), -1, "text/plain")
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", obj.Name)
	assert.Equal(t, "photos", obj.Bucket)
	assert.EqualValues(t, 11, obj.SizeBytes)
	assert.True(t, f.mem.Has("u1-photos", "notes.txt"))
	require.Len(t, f.usage.uploaded, 1)
	assert.Equal(t, usageCall{userID: "u1", size: 11, mime: "text/plain"}, f.usage.uploaded[0])
}

func TestUploadRejectsOversizedDeclaredLength(t *testing.T) {
	f := newFixture(t, 4, defaultCodec())

	_, err := f.service.Upload(context.Background(), "u1", "photos", "big.bin", strings.NewReader("too large"), 9, "")
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Zero(t, f.mem.Calls("PutObject"))
}

func TestUploadRejectsOversizedStream(t *testing.T) {
	f := newFixture(t, 4, defaultCodec())

	_, err := f.service.Upload(context.Background(), "u1", "photos", "big.bin", strings.NewReader("too large"), -1, "")
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.False(t, f.mem.Has("u1-photos", "big.bin"))
	assert.Empty(t, f.usage.uploaded)
}

func TestUploadAtExactLimit(t *testing.T) {
	f := newFixture(t, 4, defaultCodec())

	obj, err := f.service.Upload(context.Background(), "u1", "photos", "four.bin", strings.NewReader("1234"), -1, "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, obj.SizeBytes)
	assert.Equal(t, gateway.DefaultContentType, obj.ContentType)
}

func TestUploadRejectsShortBody(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	_, err := f.service.Upload(context.Background(), "u1", "photos", "notes.txt", strings.NewReader("hello world"), 20, "text/plain")
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.False(t, f.mem.Has("u1-photos", "notes.txt"))
	assert.Empty(t, f.usage.uploaded)
}

// exactReadGateway reads only the declared length, as the MinIO client does.
type exactReadGateway struct {
	*gateway.Gateway
}

func (g exactReadGateway) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (gateway.ObjectSummary, error) {
	if size < 0 {
		return g.Gateway.PutObject(ctx, bucket, key, reader, size, contentType)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return gateway.ObjectSummary{}, err
	}
	return g.Gateway.PutObject(ctx, bucket, key, bytes.NewReader(buf), size, contentType)
}

func TestUploadRejectsUnderstatedSize(t *testing.T) {
	mem := gatewaytest.NewMemory()
	mem.Seed("u1-photos", "cat.png", "image/png", []byte("meow"))
	usage := &fakeUsage{}
	service := NewService(Options{
		Gateway: exactReadGateway{gateway.New(mem, "", time.Second, nil)},
		Codec:   defaultCodec(),
		Usage:   usage,
	})

	_, err := service.Upload(context.Background(), "u1", "photos", "notes.txt", strings.NewReader("hello world"), 5, "text/plain")
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.False(t, mem.Has("u1-photos", "notes.txt"), "truncated object must not survive")
	assert.Equal(t, 1, mem.Calls("RemoveObject"))
	assert.Empty(t, usage.uploaded)

	obj, err := service.Upload(context.Background(), "u1", "photos", "notes.txt", strings.NewReader("hello world"), 11, "text/plain")
	require.NoError(t, err)
	assert.EqualValues(t, 11, obj.SizeBytes)
}

func TestUploadIntoMissingBucket(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	_, err := f.service.Upload(context.Background(), "u1", "ghost", "a.txt", strings.NewReader("x"), 1, "text/plain")
	require.ErrorIs(t, err, bucket.ErrBucketNotFound)
}

func TestListDecodesScopedKeys(t *testing.T) {
	f := newFixture(t, 1024, naming.NewCodec("-", true, true))
	f.mem.Seed("u1-photos", "u1-dog.png", "image/png", []byte("woof"))
	f.mem.Seed("u1-photos", "u2-bird.png", "image/png", []byte("tweet"))

	list, err := f.service.List(context.Background(), "u1", "photos")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "dog.png", list[0].Name)
}

func TestListMissingBucket(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	_, err := f.service.List(context.Background(), "u1", "ghost")
	require.ErrorIs(t, err, bucket.ErrBucketNotFound)
}

func TestDownloadStreamsAndRecordsActivity(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	obj, reader, err := f.service.Download(context.Background(), "u1", "photos", "cat.png")
	require.NoError(t, err)
	defer reader.Close()

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(body))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, 1, f.usage.downloads)
}

func TestDownloadMissingFile(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	_, _, err := f.service.Download(context.Background(), "u1", "photos", "nope.png")
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.Zero(t, f.usage.downloads)
}

func TestDeleteRemovesObjectAndEmitsEvent(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	require.NoError(t, f.service.Delete(context.Background(), "u1", "photos", "cat.png"))

	assert.False(t, f.mem.Has("u1-photos", "cat.png"))
	require.Len(t, f.usage.deleted, 1)
	assert.Equal(t, usageCall{userID: "u1", size: 4, mime: "image/png"}, f.usage.deleted[0])
	assert.Equal(t, []events.ObjectRef{{Bucket: "u1-photos", Key: "cat.png"}}, f.deleted.refs)
}

func TestDeleteMissingFile(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	err := f.service.Delete(context.Background(), "u1", "photos", "nope.png")
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.Empty(t, f.usage.deleted)
	assert.Empty(t, f.deleted.refs)
}

func TestMoveBetweenBuckets(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	outcome, err := f.service.Move(context.Background(), "u1", "photos", "vacation", "cat.png")
	require.NoError(t, err)

	assert.Equal(t, transfer.StateComplete, outcome.State)
	assert.Equal(t, Location{Bucket: "vacation", Name: "cat.png"}, outcome.To)
	assert.True(t, f.mem.Has("u1-vacation", "cat.png"))
	assert.False(t, f.mem.Has("u1-photos", "cat.png"))
}

func TestMoveMissingSourceIsNotFound(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	outcome, err := f.service.Move(context.Background(), "u1", "photos", "vacation", "nope.png")
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.Equal(t, transfer.StateCopyFailed, outcome.State)
}

func TestRenameKeepsPartialState(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())
	f.mem.FailAlways("RemoveObject", errors.New("access denied"))

	outcome, err := f.service.Rename(context.Background(), "u1", "photos", "cat.png", "kitty.png")
	require.ErrorIs(t, err, apperr.ErrPartialRename)
	assert.Equal(t, transfer.StateDeletePendingRetryOrOrphan, outcome.State)
	assert.True(t, f.mem.Has("u1-photos", "cat.png"))
	assert.True(t, f.mem.Has("u1-photos", "kitty.png"))
}

func TestRenameRejectsInvalidTarget(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())

	_, err := f.service.Rename(context.Background(), "u1", "photos", "cat.png", "/abs.png")
	require.ErrorIs(t, err, apperr.ErrInvalidName)
	assert.Zero(t, f.mem.Calls("CopyObject"))
}

func TestUploadEndpointStreamsMultipart(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())
	router := newTestRouter(f.service)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("note", "ignored"))
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="report.pdf"`)
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/buckets/photos/files", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var obj Object
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &obj))
	assert.Equal(t, "report.pdf", obj.Name)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.True(t, f.mem.Has("u1-photos", "report.pdf"))
}

func TestUploadEndpointTooLarge(t *testing.T) {
	f := newFixture(t, 2, defaultCodec())
	router := newTestRouter(f.service)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "big.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("way too big"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/buckets/photos/files", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestUploadEndpointSizeParam(t *testing.T) {
	cases := []struct {
		name   string
		size   string
		status int
	}{
		{"matching", "8", http.StatusCreated},
		{"understated", "3", http.StatusBadRequest},
		{"not a number", "lots", http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 1024, defaultCodec())
			router := newTestRouter(f.service)

			var body bytes.Buffer
			writer := multipart.NewWriter(&body)
			part, err := writer.CreateFormFile("file", "report.txt")
			require.NoError(t, err)
			_, err = part.Write([]byte("12345678"))
			require.NoError(t, err)
			require.NoError(t, writer.Close())

			req := httptest.NewRequest(http.MethodPost, "/v1/buckets/photos/files?size="+tc.size, &body)
			req.Header.Set("Content-Type", writer.FormDataContentType())
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.status == http.StatusCreated, f.mem.Has("u1-photos", "report.txt"))
		})
	}
}

func TestMoveEndpointReportsPartialState(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())
	f.mem.FailAlways("RemoveObject", errors.New("access denied"))
	router := newTestRouter(f.service)

	req := httptest.NewRequest(http.MethodPost, "/v1/buckets/photos/files/move",
		strings.NewReader(`{"name":"cat.png","destination":"vacation"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	var resp struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "delete_pending_retry_or_orphan", resp.State)
}

func TestEndpointStatusMapping(t *testing.T) {
	f := newFixture(t, 1024, defaultCodec())
	router := newTestRouter(f.service)

	cases := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"download existing", http.MethodGet, "/v1/buckets/photos/files/content?name=cat.png", http.StatusOK},
		{"download missing", http.MethodGet, "/v1/buckets/photos/files/content?name=dog.png", http.StatusNotFound},
		{"list missing bucket", http.MethodGet, "/v1/buckets/ghost/files", http.StatusNotFound},
		{"invalid bucket name", http.MethodGet, "/v1/buckets/Bad_Name/files", http.StatusBadRequest},
		{"delete without name", http.MethodDelete, "/v1/buckets/photos/files", http.StatusBadRequest},
		{"delete existing", http.MethodDelete, "/v1/buckets/vacation/files?name=beach.jpg", http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.target, nil))
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func newTestRouter(service *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		auth.SetUser(c, auth.ContextUser{ID: "u1"})
	})
	RegisterRoutes(r.Group("/v1"), service)
	return r
}

// --- fakes ----

type usageCall struct {
	userID string
	size   int64
	mime   string
}

type fakeUsage struct {
	mu        sync.Mutex
	uploaded  []usageCall
	deleted   []usageCall
	downloads int
}

func (f *fakeUsage) OnUploaded(_ context.Context, userID string, size int64, mime string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, usageCall{userID: userID, size: size, mime: mime})
}

func (f *fakeUsage) OnDownloaded(context.Context, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
}

func (f *fakeUsage) OnDeleted(_ context.Context, userID string, size int64, mime string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, usageCall{userID: userID, size: size, mime: mime})
}

type deleteRecorder struct {
	refs []events.ObjectRef
}

func (d *deleteRecorder) ObjectRelocated(context.Context, events.ObjectRelocated) error { return nil }

func (d *deleteRecorder) ObjectDeleted(_ context.Context, ev events.ObjectDeleted) error {
	d.refs = append(d.refs, ev.Ref)
	return nil
}

func (d *deleteRecorder) BucketDeleted(context.Context, events.BucketDeleted) error { return nil }
