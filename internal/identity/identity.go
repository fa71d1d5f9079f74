// Package identity derives stable content-addressed identities for media
// files. An identity is a 16-byte digest of a domain salt, a caller supplied
// context and the complete file content, so the same file hashed in the same
// context always yields the same identity on any machine.
package identity

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/fedragon/feedme/internal/errs"
)

// Size is the length of an identity in bytes.
const Size = 16

// Identity is an opaque content-addressed identifier.
type Identity [Size]byte

// String renders the identity as uppercase hex grouped 4-2-2-2-6 bytes.
func (id Identity) String() string {
	return strings.ToUpper(uuid.UUID(id).String())
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Parse reads the text form produced by String. Lowercase hex is accepted.
func Parse(s string) (Identity, error) {
	if len(s) != 36 {
		return Identity{}, errs.New(errs.Parse, "invalid identity %q: expected 36 characters", s)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Identity{}, errs.Wrap(errs.Parse, err, "invalid identity %q", s)
	}
	return Identity(u), nil
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// UnmarshalJSON accepts the text form as well as the raw forms written by
// older tooling: an object {"bytes": [...]} or a bare array of 16 byte
// values.
func (id *Identity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var raw struct {
			Bytes json.RawMessage `json:"bytes"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return errs.Wrap(errs.Parse, err, "invalid raw identity")
		}
		if len(raw.Bytes) == 0 {
			return errs.New(errs.Parse, "invalid raw identity: missing bytes")
		}
		data = bytes.TrimSpace(raw.Bytes)
		if len(data) == 0 || data[0] != '[' {
			return errs.New(errs.Parse, "invalid raw identity: bytes must be an array")
		}
	}

	if len(data) > 0 && data[0] == '[' {
		return id.unmarshalBytes(data)
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errs.Wrap(errs.Parse, err, "invalid identity")
	}
	return id.UnmarshalText([]byte(s))
}

func (id *Identity) unmarshalBytes(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return errs.Wrap(errs.Parse, err, "invalid raw identity")
	}
	if len(values) != Size {
		return errs.New(errs.Parse, "invalid raw identity: expected %d bytes, got %d", Size, len(values))
	}
	for i, v := range values {
		if v < 0 || v > 0xFF {
			return errs.New(errs.Parse, "invalid raw identity: byte %d out of range", i)
		}
		id[i] = byte(v)
	}
	return nil
}
