// Package objectid defines the content-addressed identifier used
// throughout monofs to name blobs, trees and commits in the backing
// store.
//
// Grounded on the minimal, dependency-free interface style of the
// teacher's gcs/gcs.go (a small value type with no behavior beyond
// identity and formatting).
package objectid

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the length in bytes of the identifiers this package produces
// via Hash. Identifiers read from a backing store may be a different
// length; ID only requires that they compare and order correctly.
const Size = sha1.Size

// ID is a variable-length, byte-lexicographically ordered
// content-addressed identifier. It is commonly (but not always)
// SHA-1-shaped.
type ID struct {
	bytes string
}

// Zero is the empty identifier, used to mean "no object" (e.g. a newly
// created file with no source generation).
var Zero ID

// FromBytes wraps raw identifier bytes. The slice is copied.
func FromBytes(b []byte) ID {
	if len(b) == 0 {
		return ID{}
	}
	return ID{bytes: string(b)}
}

// FromHex parses a hex-encoded identifier such as one read from a
// config file or command-line flag.
func FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("objectid: invalid hex identifier %q: %w", s, err)
	}
	return FromBytes(b), nil
}

// Hash derives the content-addressed identifier for the given bytes by
// computing its SHA-1 digest.
func Hash(content []byte) ID {
	sum := sha1.Sum(content)
	return FromBytes(sum[:])
}

// IsZero reports whether id is the empty identifier.
func (id ID) IsZero() bool {
	return len(id.bytes) == 0
}

// Bytes returns the raw identifier bytes. Callers must not mutate the
// returned slice.
func (id ID) Bytes() []byte {
	return []byte(id.bytes)
}

// String renders the identifier as lowercase hex, the canonical form
// used in logs, journal snapshots and on-disk keys.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return hex.EncodeToString([]byte(id.bytes))
}

// Equal reports whether id and other name the same object.
func (id ID) Equal(other ID) bool {
	return id.bytes == other.bytes
}

// Less implements the byte-lexicographic ordering required by spec.md
// §3 ("Equality and ordering are byte-lexicographic").
func (id ID) Less(other ID) bool {
	return id.bytes < other.bytes
}

// Verify checks that content hashes to id, returning an error
// identifying the expected and actual digests on mismatch. This is the
// primitive behind the DataCorruption error kind (spec.md §7).
func (id ID) Verify(content []byte) error {
	actual := Hash(content)
	if !actual.Equal(id) {
		return fmt.Errorf("%w: expected %s, got %s", ErrMismatch, id, actual)
	}
	return nil
}

// ErrMismatch is returned by Verify when content does not hash to the
// expected identifier.
var ErrMismatch = errors.New("objectid: content hash mismatch")
