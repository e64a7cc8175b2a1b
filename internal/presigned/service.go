// Package presigned hands out time-limited download links for shared objects.
package presigned

import (
	"context"
	"errors"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
	"github.com/endesomnia/cloud-sub000/internal/config"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/overlay"
	"github.com/google/uuid"
)

var (
	// ErrInvalidTTL is returned for a non-positive or over-long link lifetime.
	ErrInvalidTTL = errors.New("ttl out of range")
	// ErrObjectGone is returned when a share points at an object that no longer exists.
	ErrObjectGone = errors.New("shared object no longer exists")
)

type shareFinder interface {
	GetShare(ctx context.Context, id uuid.UUID, userID string) (overlay.SharedItem, error)
}

type objectGateway interface {
	StatObject(ctx context.Context, bucket, key string) (gateway.ObjectSummary, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Link is a presigned GET URL for one shared object.
type Link struct {
	ShareID   uuid.UUID `json:"share_id"`
	URL       string    `json:"url"`
	Bucket    string    `json:"bucket"`
	File      string    `json:"file"`
	SizeBytes int64     `json:"size_bytes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues presigned links for shares the caller takes part in.
type Service struct {
	shares  shareFinder
	gw      objectGateway
	ttl     time.Duration
	maxTTL  time.Duration
	nowFunc func() time.Time
}

// NewService constructs a link service. A zero cfg.MaxTTL leaves the
// lifetime unbounded.
func NewService(shares shareFinder, gw objectGateway, cfg config.PresignConfig) *Service {
	return &Service{
		shares:  shares,
		gw:      gw,
		ttl:     cfg.TTL,
		maxTTL:  cfg.MaxTTL,
		nowFunc: time.Now,
	}
}

// DefaultTTL is the lifetime used when the caller does not ask for one.
func (s *Service) DefaultTTL() time.Duration {
	return s.ttl
}

// ShareLink presigns the object behind shareID for userID, who must be the
// sharer or the recipient. A zero ttl selects the default lifetime.
func (s *Service) ShareLink(ctx context.Context, shareID uuid.UUID, userID string, ttl time.Duration) (Link, error) {
	if ttl == 0 {
		ttl = s.ttl
	}
	if ttl <= 0 || (s.maxTTL > 0 && ttl > s.maxTTL) {
		return Link{}, ErrInvalidTTL
	}

	item, err := s.shares.GetShare(ctx, shareID, userID)
	if err != nil {
		return Link{}, err
	}

	// Shares are loose references; the object may have moved or been deleted.
	info, err := s.gw.StatObject(ctx, item.BucketName, item.FileName)
	if err != nil {
		if apperr.IsNotFound(err) {
			return Link{}, ErrObjectGone
		}
		return Link{}, err
	}

	url, err := s.gw.PresignGet(ctx, item.BucketName, item.FileName, ttl)
	if err != nil {
		return Link{}, err
	}

	return Link{
		ShareID:   item.ID,
		URL:       url,
		Bucket:    item.BucketName,
		File:      item.FileName,
		SizeBytes: info.Size,
		ExpiresAt: s.nowFunc().Add(ttl),
	}, nil
}
