package file

import (
	"time"

	"github.com/endesomnia/cloud-sub000/internal/transfer"
)

// Object describes a stored file by its logical name.
type Object struct {
	Bucket       string    `json:"bucket"`
	Name         string    `json:"name"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Location names a file from the caller's point of view.
type Location struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// TransferOutcome reports how far a move or rename got.
type TransferOutcome struct {
	Kind  transfer.Kind  `json:"kind"`
	State transfer.State `json:"state"`
	From  Location       `json:"from"`
	To    Location       `json:"to"`
}
