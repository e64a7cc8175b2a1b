package policy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode selects anonymous read access for a bucket.
type Mode string

const (
	ModePublic  Mode = "public"
	ModePrivate Mode = "private"
)

const (
	version      = "2012-10-17"
	actionGetObj = "s3:GetObject"
	effectAllow  = "Allow"
	effectDeny   = "Deny"
	resourceARN  = "arn:aws:s3:::"
)

// ParseMode accepts "public", "public-read" and "private" (case-insensitive).
// An empty string defaults to private.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "private":
		return ModePrivate, nil
	case "public", "public-read":
		return ModePublic, nil
	}
	return "", fmt.Errorf("unknown access mode %q", raw)
}

// Principal is the anonymous principal {"AWS": ["*"]}.
type Principal struct {
	AWS []string `json:"AWS"`
}

// Statement is a single policy statement.
type Statement struct {
	Sid       string    `json:"Sid"`
	Effect    string    `json:"Effect"`
	Principal Principal `json:"Principal"`
	Action    []string  `json:"Action"`
	Resource  []string  `json:"Resource"`
}

// Document is a bucket access policy.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Generate builds the policy for bucket. Private buckets get an explicit deny
// rather than no policy.
func Generate(bucket string, mode Mode) Document {
	effect := effectDeny
	sid := "DenyAnonymousRead"
	if mode == ModePublic {
		effect = effectAllow
		sid = "AllowAnonymousRead"
	}
	return Document{
		Version: version,
		Statement: []Statement{{
			Sid:       sid,
			Effect:    effect,
			Principal: Principal{AWS: []string{"*"}},
			Action:    []string{actionGetObj},
			Resource:  []string{resourceARN + bucket + "/*"},
		}},
	}
}

// JSON renders the document in the form accepted by SetBucketPolicy.
func (d Document) JSON() string {
	// Document holds only strings and slices of strings; Marshal cannot fail.
	raw, _ := json.Marshal(d)
	return string(raw)
}

// UnmarshalJSON accepts the shorthand forms stores return: a bare "*"
// principal and single-string Action or Resource.
func (s *Statement) UnmarshalJSON(data []byte) error {
	var aux struct {
		Sid       string          `json:"Sid"`
		Effect    string          `json:"Effect"`
		Principal json.RawMessage `json:"Principal"`
		Action    json.RawMessage `json:"Action"`
		Resource  json.RawMessage `json:"Resource"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Sid, s.Effect = aux.Sid, aux.Effect

	var err error
	if s.Action, err = stringOrList(aux.Action); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	if s.Resource, err = stringOrList(aux.Resource); err != nil {
		return fmt.Errorf("decode resource: %w", err)
	}

	s.Principal = Principal{}
	if len(aux.Principal) == 0 {
		return nil
	}
	var star string
	if json.Unmarshal(aux.Principal, &star) == nil {
		s.Principal.AWS = []string{star}
		return nil
	}
	var obj struct {
		AWS json.RawMessage `json:"AWS"`
	}
	if err := json.Unmarshal(aux.Principal, &obj); err != nil {
		return fmt.Errorf("decode principal: %w", err)
	}
	if s.Principal.AWS, err = stringOrList(obj.AWS); err != nil {
		return fmt.Errorf("decode principal: %w", err)
	}
	return nil
}

func stringOrList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

// Parse decodes a policy read back from the store. An empty policy is a
// private bucket with no statements.
func Parse(raw string) (Document, error) {
	if strings.TrimSpace(raw) == "" {
		return Document{Version: version}, nil
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Document{}, fmt.Errorf("decode bucket policy: %w", err)
	}
	return doc, nil
}

// Mode reports the access mode the document encodes.
func (d Document) Mode() Mode {
	for _, st := range d.Statement {
		if st.Effect == effectAllow {
			return ModePublic
		}
	}
	return ModePrivate
}
