// Package buildid defines the fixed-size GNU build-id identifier used
// throughout the indexer and lookup packages.
package buildid

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Size is the length, in bytes, of a GNU build-id as produced by the
// default linker note (sha1-derived).
const Size = 20

// ID is a 20-byte build-id. The zero value is not a valid build-id; use
// [Parse] or [FromBytes] to construct one.
type ID [Size]byte

// String returns the lowercase hex representation.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	b := make([]byte, hex.EncodedLen(Size))
	hex.Encode(b, id[:])
	return b, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(t []byte) error {
	parsed, err := Parse(string(t))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Error is the concrete type backing errors returned from this package.
type Error struct {
	msg   string
	inner error
}

// Error implements error.
func (e *Error) Error() string { return e.msg }

// Unwrap enables errors.Unwrap.
func (e *Error) Unwrap() error { return e.inner }

// Parse decodes a hex string into a build-id.
//
// Decoding is strict: the input must decode to exactly [Size] bytes, or
// an error is returned. Any non-hex character is also an error.
func Parse(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, &Error{msg: "build-id is not valid hex", inner: err}
	}
	return FromBytes(b)
}

// FromBytes validates and wraps a raw byte slice as a build-id.
//
// The slice must be exactly [Size] bytes long.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, &Error{msg: fmt.Sprintf("build-id must be %d bytes, got %d", Size, len(b))}
	}
	copy(id[:], b)
	return id, nil
}

// Equal reports whether two build-ids are the same.
func Equal(a, b ID) bool { return bytes.Equal(a[:], b[:]) }
