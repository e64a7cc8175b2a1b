// Package overlay keeps user-facing metadata (stars and shares) beside the
// object store. Rows reference objects by (bucket, file) only; nothing here
// checks that the object exists.
package overlay

import (
	"context"
	"strings"

	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/google/uuid"
)

type repository interface {
	Star(ctx context.Context, userID, bucketName, fileName string, itemType ItemType) (StarredItem, error)
	Unstar(ctx context.Context, id uuid.UUID, userID string) (int64, error)
	ListStarred(ctx context.Context, userID string) ([]StarredItem, error)
	IsStarred(ctx context.Context, userID, bucketName, fileName string) (bool, error)
	Share(ctx context.Context, bucketName, fileName, sharedByID, sharedToID string) (SharedItem, error)
	Unshare(ctx context.Context, id uuid.UUID, userID string) (int64, error)
	GetShare(ctx context.Context, id uuid.UUID, userID string) (SharedItem, error)
	ListSharedWithUser(ctx context.Context, userID string) ([]SharedItem, error)
	ListSharedByUser(ctx context.Context, userID string) ([]SharedItem, error)
	IsShared(ctx context.Context, bucketName, fileName, userID string) (bool, error)
	Relocate(ctx context.Context, old, updated events.ObjectRef) (int64, error)
	Forget(ctx context.Context, ref events.ObjectRef) (int64, error)
	ForgetBucket(ctx context.Context, bucketName string) (int64, error)
}

// Service exposes star and share operations.
type Service struct {
	repo repository
}

// NewService constructs an overlay service.
func NewService(repo repository) *Service {
	return &Service{repo: repo}
}

// Star bookmarks bucketName/fileName for userID. Starring twice returns the same row.
func (s *Service) Star(ctx context.Context, userID, bucketName, fileName string, itemType ItemType) (StarredItem, error) {
	if err := validateRef(bucketName, fileName); err != nil {
		return StarredItem{}, err
	}
	itemType, err := ParseItemType(string(itemType))
	if err != nil {
		return StarredItem{}, err
	}
	return s.repo.Star(ctx, userID, bucketName, fileName, itemType)
}

// Unstar removes a star owned by userID. Zero rows means it did not exist or
// belongs to someone else; callers treat both the same.
func (s *Service) Unstar(ctx context.Context, id uuid.UUID, userID string) (int64, error) {
	return s.repo.Unstar(ctx, id, userID)
}

// ListStarred returns userID's stars, newest first.
func (s *Service) ListStarred(ctx context.Context, userID string) ([]StarredItem, error) {
	return s.repo.ListStarred(ctx, userID)
}

// IsStarred reports whether userID starred bucketName/fileName.
func (s *Service) IsStarred(ctx context.Context, userID, bucketName, fileName string) (bool, error) {
	return s.repo.IsStarred(ctx, userID, bucketName, fileName)
}

// Share grants sharedToID visibility of bucketName/fileName. Sharing twice
// returns the same row.
func (s *Service) Share(ctx context.Context, bucketName, fileName, sharedByID, sharedToID string) (SharedItem, error) {
	if err := validateRef(bucketName, fileName); err != nil {
		return SharedItem{}, err
	}
	if sharedByID == sharedToID {
		return SharedItem{}, ErrSelfShare
	}
	return s.repo.Share(ctx, bucketName, fileName, sharedByID, sharedToID)
}

// Unshare removes a share where userID is either party.
func (s *Service) Unshare(ctx context.Context, id uuid.UUID, userID string) (int64, error) {
	return s.repo.Unshare(ctx, id, userID)
}

// GetShare returns the share if userID is a party to it.
func (s *Service) GetShare(ctx context.Context, id uuid.UUID, userID string) (SharedItem, error) {
	return s.repo.GetShare(ctx, id, userID)
}

// ListSharedWithUser returns shares addressed to userID, newest first.
func (s *Service) ListSharedWithUser(ctx context.Context, userID string) ([]SharedItem, error) {
	return s.repo.ListSharedWithUser(ctx, userID)
}

// ListSharedByUser returns shares userID created, newest first.
func (s *Service) ListSharedByUser(ctx context.Context, userID string) ([]SharedItem, error) {
	return s.repo.ListSharedByUser(ctx, userID)
}

// IsShared reports whether bucketName/fileName is shared with userID as either party.
func (s *Service) IsShared(ctx context.Context, bucketName, fileName, userID string) (bool, error) {
	return s.repo.IsShared(ctx, bucketName, fileName, userID)
}

func validateRef(bucketName, fileName string) error {
	if strings.TrimSpace(bucketName) == "" || strings.TrimSpace(fileName) == "" {
		return ErrInvalidReference
	}
	return nil
}
