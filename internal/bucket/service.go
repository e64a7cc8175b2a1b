package bucket

import (
	"context"
	"fmt"
	"sort"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/naming"
	"github.com/endesomnia/cloud-sub000/internal/policy"
	"go.uber.org/zap"
)

type objectGateway interface {
	CreateBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error
	ListBuckets(ctx context.Context, prefix string) ([]gateway.BucketSummary, error)
	SetBucketPolicy(ctx context.Context, bucket string, doc policy.Document) error
	BucketPolicy(ctx context.Context, bucket string) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) *gateway.ObjectIterator
	StatObject(ctx context.Context, bucket, key string) (gateway.ObjectSummary, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

type usageRecorder interface {
	OnDeleted(ctx context.Context, userID string, size int64, mime string)
}

// Service orchestrates bucket operations inside a user's namespace.
type Service struct {
	gw     objectGateway
	codec  naming.Codec
	usage  usageRecorder
	events *events.Bus
	logger *zap.Logger
}

// NewService constructs a bucket service. usage and bus may be nil.
func NewService(gw objectGateway, codec naming.Codec, usage usageRecorder, bus *events.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gw: gw, codec: codec, usage: usage, events: bus, logger: logger}
}

// CreateBucket creates userID's bucket and attaches the policy for mode.
func (s *Service) CreateBucket(ctx context.Context, userID, name string, mode policy.Mode) (Bucket, error) {
	physical, err := s.codec.EncodeBucket(userID, name)
	if err != nil {
		return Bucket{}, err
	}

	if err := s.gw.CreateBucket(ctx, physical); err != nil {
		switch apperr.CodeOf(err) {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return Bucket{}, ErrBucketNameExists
		}
		return Bucket{}, err
	}

	if err := s.gw.SetBucketPolicy(ctx, physical, policy.Generate(physical, mode)); err != nil {
		// A bucket without its policy is not handed out; drop it so the name can be retried.
		if rmErr := s.gw.DeleteBucket(context.WithoutCancel(ctx), physical); rmErr != nil {
			s.logger.Warn("bucket left without policy",
				zap.String("bucket", physical),
				zap.Error(rmErr),
			)
		}
		return Bucket{}, err
	}

	return Bucket{Name: name, PhysicalName: physical, Access: mode}, nil
}

// ListBuckets returns userID's buckets by logical name.
func (s *Service) ListBuckets(ctx context.Context, userID string) ([]Bucket, error) {
	summaries, err := s.gw.ListBuckets(ctx, s.codec.Prefix(userID))
	if err != nil {
		return nil, err
	}

	buckets := make([]Bucket, 0, len(summaries))
	for _, summary := range summaries {
		if !s.codec.OwnsBucket(summary.Name, userID) {
			continue
		}
		buckets = append(buckets, Bucket{
			Name:         s.codec.DecodeBucket(summary.Name, userID),
			PhysicalName: summary.Name,
			CreatedAt:    summary.CreatedAt,
		})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

// GetBucket returns a single bucket with its current access mode.
func (s *Service) GetBucket(ctx context.Context, userID, name string) (Bucket, error) {
	physical, err := s.codec.EncodeBucket(userID, name)
	if err != nil {
		return Bucket{}, err
	}

	summaries, err := s.gw.ListBuckets(ctx, physical)
	if err != nil {
		return Bucket{}, err
	}
	for _, summary := range summaries {
		if summary.Name != physical {
			continue
		}
		raw, err := s.gw.BucketPolicy(ctx, physical)
		if err != nil {
			return Bucket{}, translateNotFound(err)
		}
		doc, err := policy.Parse(raw)
		if err != nil {
			return Bucket{}, err
		}
		return Bucket{Name: name, PhysicalName: physical, Access: doc.Mode(), CreatedAt: summary.CreatedAt}, nil
	}
	return Bucket{}, ErrBucketNotFound
}

// SetAccess replaces the bucket's policy with the one for mode.
func (s *Service) SetAccess(ctx context.Context, userID, name string, mode policy.Mode) (Bucket, error) {
	physical, err := s.codec.EncodeBucket(userID, name)
	if err != nil {
		return Bucket{}, err
	}
	if err := s.gw.SetBucketPolicy(ctx, physical, policy.Generate(physical, mode)); err != nil {
		return Bucket{}, translateNotFound(err)
	}
	return Bucket{Name: name, PhysicalName: physical, Access: mode}, nil
}

// DeleteBucket removes every object in the bucket, then the bucket itself.
// Objects deleted before a failure stay deleted.
func (s *Service) DeleteBucket(ctx context.Context, userID, name string) (DeleteSummary, error) {
	physical, err := s.codec.EncodeBucket(userID, name)
	if err != nil {
		return DeleteSummary{}, err
	}

	summary := DeleteSummary{Bucket: name}
	objects, err := gateway.Collect(s.gw.ListObjects(ctx, physical, ""))
	if err != nil {
		return summary, translateNotFound(err)
	}

	for _, obj := range objects {
		contentType := obj.ContentType
		if contentType == "" || contentType == gateway.DefaultContentType {
			if info, err := s.gw.StatObject(ctx, physical, obj.Key); err == nil {
				contentType = info.ContentType
			}
		}
		if err := s.gw.DeleteObject(ctx, physical, obj.Key); err != nil {
			return summary, fmt.Errorf("empty bucket %s: %w", name, err)
		}
		summary.ObjectsRemoved++
		summary.BytesRemoved += obj.Size
		if s.usage != nil {
			s.usage.OnDeleted(ctx, userID, obj.Size, contentType)
		}
	}

	if err := s.gw.DeleteBucket(ctx, physical); err != nil {
		return summary, translateNotFound(err)
	}
	s.events.BucketRemoved(ctx, physical)
	return summary, nil
}

func translateNotFound(err error) error {
	if apperr.CodeOf(err) == "NoSuchBucket" {
		return ErrBucketNotFound
	}
	return err
}
