package file

import "errors"

var (
	// ErrFileNotFound signals that the file could not be located.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileTooLarge signals that the upload exceeds configured limits.
	ErrFileTooLarge = errors.New("file too large")
	// ErrSizeMismatch signals a body whose length differs from the declared size.
	ErrSizeMismatch = errors.New("file size does not match declared size")
	// ErrMissingFile signals an upload request without a file part.
	ErrMissingFile = errors.New("file field is required")
)
