package overlay

import "errors"

var (
	// ErrInvalidItemType is returned for a star type other than file or folder.
	ErrInvalidItemType = errors.New("item type must be file or folder")
	// ErrInvalidReference is returned when a bucket or file name is empty.
	ErrInvalidReference = errors.New("bucket and file name are required")
	// ErrSelfShare is returned when a user shares an item with themselves.
	ErrSelfShare = errors.New("cannot share an item with yourself")
	// ErrShareNotFound is returned when no share involving the user matches.
	ErrShareNotFound = errors.New("share not found")
)
