package file

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/bucket"
	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/naming"
	"github.com/endesomnia/cloud-sub000/internal/transfer"
	"go.uber.org/zap"
)

const defaultMaxFileSize = 100 * 1024 * 1024 // 100MB

type objectGateway interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (gateway.ObjectSummary, error)
	GetObject(ctx context.Context, bucket, key string) (*gateway.Object, error)
	StatObject(ctx context.Context, bucket, key string) (gateway.ObjectSummary, error)
	ListObjects(ctx context.Context, bucket, prefix string) *gateway.ObjectIterator
	DeleteObject(ctx context.Context, bucket, key string) error
}

type mover interface {
	Move(ctx context.Context, srcBucket, dstBucket, key string) (transfer.Result, error)
	Rename(ctx context.Context, bucket, oldKey, newKey string) (transfer.Result, error)
}

type usageRecorder interface {
	OnUploaded(ctx context.Context, userID string, size int64, mime string)
	OnDownloaded(ctx context.Context, userID string)
	OnDeleted(ctx context.Context, userID string, size int64, mime string)
}

// Options wires the collaborators of a Service. Usage and Events may be nil.
type Options struct {
	Gateway     objectGateway
	Mover       mover
	Codec       naming.Codec
	Usage       usageRecorder
	Events      *events.Bus
	MaxFileSize int64
	Logger      *zap.Logger
}

// Service manages file lifecycle operations inside a user's buckets.
type Service struct {
	gw          objectGateway
	mover       mover
	codec       naming.Codec
	usage       usageRecorder
	events      *events.Bus
	maxFileSize int64
	logger      *zap.Logger
}

// NewService constructs a file service.
func NewService(opts Options) *Service {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		gw:          opts.Gateway,
		mover:       opts.Mover,
		codec:       opts.Codec,
		usage:       opts.Usage,
		events:      opts.Events,
		maxFileSize: opts.MaxFileSize,
		logger:      opts.Logger,
	}
}

// Upload streams reader into the user's bucket under name. A negative size
// means the length is unknown; the limit is then enforced while reading.
func (s *Service) Upload(ctx context.Context, userID, bucketName, name string, reader io.Reader, size int64, contentType string) (Object, error) {
	if reader == nil {
		return Object{}, ErrMissingFile
	}
	if size > s.maxFileSize {
		return Object{}, ErrFileTooLarge
	}

	physicalBucket, key, err := s.locate(userID, bucketName, name)
	if err != nil {
		return Object{}, err
	}

	limited := &limitReader{r: reader, remaining: s.maxFileSize}
	summary, err := s.gw.PutObject(ctx, physicalBucket, key, limited, size, contentType)
	if err != nil {
		switch {
		case limited.exceeded:
			s.logger.Info("upload aborted at size limit",
				zap.String("bucket", physicalBucket),
				zap.String("key", key),
				zap.Int64("limit", s.maxFileSize),
			)
			return Object{}, ErrFileTooLarge
		case size >= 0 && limited.eof && limited.read != size:
			return Object{}, ErrSizeMismatch
		}
		return Object{}, translate(err)
	}

	// The store reads exactly size bytes when a length is declared; anything
	// left over means the object was stored truncated.
	if size >= 0 && limited.trailing() {
		if err := s.gw.DeleteObject(ctx, physicalBucket, key); err != nil {
			s.logger.Warn("remove truncated upload",
				zap.String("bucket", physicalBucket),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return Object{}, ErrSizeMismatch
	}

	s.record(func() { s.usage.OnUploaded(ctx, userID, summary.Size, summary.ContentType) })
	return s.object(userID, bucketName, summary), nil
}

// List returns the files in a bucket, sorted by name.
func (s *Service) List(ctx context.Context, userID, bucketName string) ([]Object, error) {
	physicalBucket, err := s.codec.EncodeBucket(userID, bucketName)
	if err != nil {
		return nil, err
	}

	summaries, err := gateway.Collect(s.gw.ListObjects(ctx, physicalBucket, s.codec.KeyPrefix(userID)))
	if err != nil {
		return nil, translate(err)
	}

	objects := make([]Object, 0, len(summaries))
	for _, summary := range summaries {
		objects = append(objects, s.object(userID, bucketName, summary))
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Download opens a file for streaming. The caller must close the reader.
func (s *Service) Download(ctx context.Context, userID, bucketName, name string) (Object, io.ReadCloser, error) {
	physicalBucket, key, err := s.locate(userID, bucketName, name)
	if err != nil {
		return Object{}, nil, err
	}

	obj, err := s.gw.GetObject(ctx, physicalBucket, key)
	if err != nil {
		return Object{}, nil, translate(err)
	}

	s.record(func() { s.usage.OnDownloaded(ctx, userID) })
	return s.object(userID, bucketName, obj.Info), obj, nil
}

// Delete removes a file and reports the deletion to listeners.
func (s *Service) Delete(ctx context.Context, userID, bucketName, name string) error {
	physicalBucket, key, err := s.locate(userID, bucketName, name)
	if err != nil {
		return err
	}

	info, err := s.gw.StatObject(ctx, physicalBucket, key)
	if err != nil {
		return translate(err)
	}
	if err := s.gw.DeleteObject(ctx, physicalBucket, key); err != nil {
		return translate(err)
	}

	s.record(func() { s.usage.OnDeleted(ctx, userID, info.Size, info.ContentType) })
	s.events.Deleted(ctx, events.ObjectRef{Bucket: physicalBucket, Key: key})
	return nil
}

// Move relocates name from srcBucket to dstBucket, keeping its name.
func (s *Service) Move(ctx context.Context, userID, srcBucket, dstBucket, name string) (TransferOutcome, error) {
	outcome := TransferOutcome{
		Kind: transfer.KindMove,
		From: Location{Bucket: srcBucket, Name: name},
		To:   Location{Bucket: dstBucket, Name: name},
	}

	physicalSrc, key, err := s.locate(userID, srcBucket, name)
	if err != nil {
		return outcome, err
	}
	physicalDst, err := s.codec.EncodeBucket(userID, dstBucket)
	if err != nil {
		return outcome, err
	}

	res, err := s.mover.Move(ctx, physicalSrc, physicalDst, key)
	outcome.State = res.State
	return outcome, translateTransfer(err)
}

// Rename changes a file's name inside bucketName.
func (s *Service) Rename(ctx context.Context, userID, bucketName, oldName, newName string) (TransferOutcome, error) {
	outcome := TransferOutcome{
		Kind: transfer.KindRename,
		From: Location{Bucket: bucketName, Name: oldName},
		To:   Location{Bucket: bucketName, Name: newName},
	}

	physicalBucket, oldKey, err := s.locate(userID, bucketName, oldName)
	if err != nil {
		return outcome, err
	}
	newKey, err := s.codec.EncodeKey(userID, newName)
	if err != nil {
		return outcome, err
	}

	res, err := s.mover.Rename(ctx, physicalBucket, oldKey, newKey)
	outcome.State = res.State
	return outcome, translateTransfer(err)
}

func (s *Service) locate(userID, bucketName, name string) (string, string, error) {
	physicalBucket, err := s.codec.EncodeBucket(userID, bucketName)
	if err != nil {
		return "", "", err
	}
	key, err := s.codec.EncodeKey(userID, sanitizeFilename(name))
	if err != nil {
		return "", "", err
	}
	return physicalBucket, key, nil
}

func (s *Service) object(userID, bucketName string, summary gateway.ObjectSummary) Object {
	return Object{
		Bucket:       bucketName,
		Name:         s.codec.DecodeKey(summary.Key, userID),
		SizeBytes:    summary.Size,
		ContentType:  summary.ContentType,
		ETag:         summary.ETag,
		LastModified: summary.LastModified,
	}
}

func (s *Service) record(fn func()) {
	if s.usage != nil {
		fn()
	}
}

// limitReader fails the read that would take the stream past its limit.
type limitReader struct {
	r         io.Reader
	remaining int64
	read      int64
	exceeded  bool
	eof       bool
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		l.exceeded = true
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	l.read += int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return 0, ErrFileTooLarge
	}
	if err == io.EOF {
		l.eof = true
	}
	return n, err
}

// trailing reports whether the underlying reader still holds data.
func (l *limitReader) trailing() bool {
	if l.eof {
		return false
	}
	var buf [1]byte
	n, _ := io.ReadFull(l.r, buf[:])
	return n > 0
}

func sanitizeFilename(name string) string {
	return strings.TrimSpace(name)
}

func translate(err error) error {
	switch apperr.CodeOf(err) {
	case "NoSuchBucket":
		return bucket.ErrBucketNotFound
	case "NoSuchKey", "NotFound":
		return ErrFileNotFound
	}
	return err
}

// translateTransfer keeps the transfer error kind while mapping a missing
// source onto the package's not-found errors.
func translateTransfer(err error) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindMoveFailed, apperr.KindRenameFailed:
		if apperr.IsNotFound(err) {
			return translate(err)
		}
	}
	return err
}
