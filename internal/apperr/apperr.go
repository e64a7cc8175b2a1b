// Package apperr defines the error type shared by the naming, gateway and
// transfer layers. Each failure carries a Kind so callers can tell a rejected
// name from a storage outage, and a failed transfer from a half-finished one.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidName
	KindStorage
	KindMoveFailed
	KindRenameFailed
	KindPartialMove
	KindPartialRename
)

func (k Kind) String() string {
	switch k {
	case KindInvalidName:
		return "invalid name"
	case KindStorage:
		return "storage error"
	case KindMoveFailed:
		return "move failed"
	case KindRenameFailed:
		return "rename failed"
	case KindPartialMove:
		return "partial move"
	case KindPartialRename:
		return "partial rename"
	default:
		return "unknown"
	}
}

// Error is the tagged error value produced by the core packages.
type Error struct {
	Kind   Kind
	Op     string
	Bucket string
	Key    string
	// Code is the object store error code when one was returned (e.g. NoSuchKey).
	Code   string
	Reason string
	Err    error
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrInvalidName   = &Error{Kind: KindInvalidName}
	ErrStorage       = &Error{Kind: KindStorage}
	ErrMoveFailed    = &Error{Kind: KindMoveFailed}
	ErrRenameFailed  = &Error{Kind: KindRenameFailed}
	ErrPartialMove   = &Error{Kind: KindPartialMove}
	ErrPartialRename = &Error{Kind: KindPartialRename}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Bucket != "" || e.Key != "" {
		fmt.Fprintf(&b, " %s/%s", e.Bucket, e.Key)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// InvalidName reports a name rejected before any I/O.
func InvalidName(name, reason string) *Error {
	return &Error{Kind: KindInvalidName, Key: name, Reason: reason}
}

// Storage wraps an object store failure with the operation that triggered it.
func Storage(op, bucket, key, code string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Bucket: bucket, Key: key, Code: code, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the object store error code carried anywhere in err's chain.
func CodeOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Code != "" {
			return e.Code
		}
		err = e.Err
	}
	return ""
}

// IsNotFound reports whether err came from a missing bucket or object.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
