// Package naming folds tenant identities into the flat object store namespace.
//
// A bucket named "photos" owned by user u1 is stored as "u1-photos". The same
// Scheme is used for object keys when key scoping is enabled, so buckets and
// keys never disagree about the delimiter.
package naming

import (
	"strings"
	"unicode/utf8"

	"github.com/endesomnia/cloud-sub000/internal/apperr"
)

const (
	// MinBucketLength and MaxBucketLength bound physical bucket names.
	MinBucketLength = 3
	MaxBucketLength = 63
	// MaxKeyLength bounds physical object keys, in bytes.
	MaxKeyLength = 1024

	// DefaultDelimiter is the only delimiter legal in both bucket names and keys
	// across every S3 implementation we target.
	DefaultDelimiter = "-"
)

// Scheme describes how a tenant prefix is joined to a logical name.
type Scheme struct {
	Delimiter string
}

// Codec encodes and decodes physical names. The zero value scopes buckets
// with DefaultDelimiter and leaves keys untouched.
type Codec struct {
	Scheme      Scheme
	ScopeBucket bool
	ScopeKeys   bool
}

// NewCodec returns a Codec using delimiter for both buckets and keys.
func NewCodec(delimiter string, scopeBuckets, scopeKeys bool) Codec {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return Codec{Scheme: Scheme{Delimiter: delimiter}, ScopeBucket: scopeBuckets, ScopeKeys: scopeKeys}
}

func (c Codec) delimiter() string {
	if c.Scheme.Delimiter == "" {
		return DefaultDelimiter
	}
	return c.Scheme.Delimiter
}

// Prefix returns the physical prefix shared by all of userID's buckets.
func (c Codec) Prefix(userID string) string {
	if !c.ScopeBucket {
		return ""
	}
	return userID + c.delimiter()
}

// EncodeBucket returns the physical bucket name for userID's logical bucket.
func (c Codec) EncodeBucket(userID, logical string) (string, error) {
	if logical == "" {
		return "", apperr.InvalidName(logical, "bucket name is empty")
	}
	physical := logical
	if c.ScopeBucket {
		if userID == "" {
			return "", apperr.InvalidName(logical, "tenant id is empty")
		}
		if budget := MaxBucketLength - len(userID) - len(c.delimiter()); len(logical) > budget {
			return "", apperr.InvalidName(logical, "bucket name exceeds length budget after tenant prefix")
		}
		physical = userID + c.delimiter() + logical
	}
	if err := ValidateBucket(physical); err != nil {
		return "", err
	}
	return physical, nil
}

// DecodeBucket recovers the logical bucket name. Names without userID's prefix
// are returned unchanged since legacy buckets may be unscoped.
func (c Codec) DecodeBucket(physical, userID string) string {
	if userID == "" {
		return physical
	}
	return strings.TrimPrefix(physical, userID+c.delimiter())
}

// OwnsBucket reports whether physical sits inside userID's namespace.
func (c Codec) OwnsBucket(physical, userID string) bool {
	if !c.ScopeBucket {
		return true
	}
	return userID != "" && strings.HasPrefix(physical, userID+c.delimiter())
}

// EncodeKey returns the physical object key for userID's logical file name.
func (c Codec) EncodeKey(userID, logical string) (string, error) {
	if err := validateLogicalKey(logical); err != nil {
		return "", err
	}
	physical := logical
	if c.ScopeKeys {
		if userID == "" {
			return "", apperr.InvalidName(logical, "tenant id is empty")
		}
		physical = userID + c.delimiter() + logical
	}
	if len(physical) > MaxKeyLength {
		return "", apperr.InvalidName(logical, "object key too long")
	}
	return physical, nil
}

// DecodeKey recovers the logical file name from a physical key.
func (c Codec) DecodeKey(physical, userID string) string {
	if !c.ScopeKeys || userID == "" {
		return physical
	}
	return strings.TrimPrefix(physical, userID+c.delimiter())
}

// KeyPrefix returns the key prefix used when listing userID's objects.
func (c Codec) KeyPrefix(userID string) string {
	if !c.ScopeKeys {
		return ""
	}
	return userID + c.delimiter()
}

// ValidateBucket checks a physical bucket name against the S3 naming rules.
func ValidateBucket(name string) error {
	if len(name) < MinBucketLength || len(name) > MaxBucketLength {
		return apperr.InvalidName(name, "bucket name must be 3-63 characters")
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '.':
			if i == 0 || i == len(name)-1 {
				return apperr.InvalidName(name, "bucket name must start and end with a letter or digit")
			}
			if ch == '.' && (name[i-1] == '.' || name[i+1] == '.') {
				return apperr.InvalidName(name, "bucket name must not contain adjacent periods")
			}
		default:
			return apperr.InvalidName(name, "bucket name may only contain lowercase letters, digits, '.' and '-'")
		}
	}
	return nil
}

func validateLogicalKey(name string) error {
	switch {
	case name == "":
		return apperr.InvalidName(name, "file name is empty")
	case !utf8.ValidString(name):
		return apperr.InvalidName(name, "file name is not valid UTF-8")
	case strings.HasPrefix(name, "/"):
		return apperr.InvalidName(name, "file name must not start with '/'")
	case len(name) > MaxKeyLength:
		return apperr.InvalidName(name, "object key too long")
	}
	return nil
}
