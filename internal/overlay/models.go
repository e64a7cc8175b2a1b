package overlay

import (
	"time"

	"github.com/google/uuid"
)

// ItemType tells whether a starred reference names a single object or a key prefix.
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// ParseItemType maps request input onto an ItemType. Empty input means a file.
func ParseItemType(raw string) (ItemType, error) {
	switch ItemType(raw) {
	case "", ItemFile:
		return ItemFile, nil
	case ItemFolder:
		return ItemFolder, nil
	}
	return "", ErrInvalidItemType
}

// StarredItem is a user's bookmark on a (bucket, file) pair. The pair is not
// checked against the object store.
type StarredItem struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	BucketName string    `json:"bucket_name"`
	FileName   string    `json:"file_name"`
	Type       ItemType  `json:"type"`
	CreatedAt  time.Time `json:"created_at"`
}

// SharedItem grants SharedToID visibility of a (bucket, file) pair owned by SharedByID.
type SharedItem struct {
	ID         uuid.UUID `json:"id"`
	BucketName string    `json:"bucket_name"`
	FileName   string    `json:"file_name"`
	SharedByID string    `json:"shared_by_id"`
	SharedToID string    `json:"shared_to_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Involves reports whether userID is either party of the share.
func (s SharedItem) Involves(userID string) bool {
	return s.SharedByID == userID || s.SharedToID == userID
}
