// Package model defines the immutable value types of the working copy's
// object model: blobs, their cached metadata, and trees of entries.
//
// Grounded on spec.md §3/§6: a tree value is a length-prefixed entry
// list deserializable from its on-disk form. The encoding mirrors the
// teacher's general preference for small, explicit wire structs (see
// gcs.Object in gcs/gcs.go) adapted to the binary framing spec.md §6
// requires, using stdlib encoding/binary the way the teacher uses
// stdlib encoding/json/gob elsewhere for small on-disk records.
package model

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/monofs/monofs/objectid"
)

// EntryType enumerates the kinds of object a TreeEntry can name.
type EntryType uint8

const (
	RegularFile EntryType = iota
	ExecutableFile
	Symlink
	Tree_
)

func (t EntryType) String() string {
	switch t {
	case RegularFile:
		return "file"
	case ExecutableFile:
		return "executable"
	case Symlink:
		return "symlink"
	case Tree_:
		return "tree"
	default:
		return fmt.Sprintf("EntryType(%d)", uint8(t))
	}
}

// Mode returns the permission bits implied by t, per spec.md §3
// ("Permissions are a function of type").
func (t EntryType) Mode() uint32 {
	switch t {
	case ExecutableFile:
		return 0755
	case Symlink:
		return 0777
	case Tree_:
		return 0755
	default:
		return 0644
	}
}

// Blob is the immutable contents of a file or symlink target.
type Blob struct {
	ID       objectid.ID
	Contents []byte
}

// Metadata derives the eagerly-cacheable metadata for this blob.
func (b Blob) Metadata() BlobMetadata {
	return BlobMetadata{
		SHA1: objectid.Hash(b.Contents),
		Size: int64(len(b.Contents)),
	}
}

// BlobMetadata is the cheap-to-answer pair of facts about a blob most
// callers need without materializing its full contents (spec.md §3).
type BlobMetadata struct {
	SHA1 objectid.ID
	Size int64
}

// TreeEntry names one child of a Tree.
type TreeEntry struct {
	Name vfspathComponent
	ID   objectid.ID
	Type EntryType
}

// vfspathComponent is a plain string alias for a single entry name;
// model does not import vfspath, and no validation is applied to it
// here.
type vfspathComponent = string

// Tree is an immutable, ordered collection of entries, matching the
// on-disk format of spec.md §6: a version tag, an entry count, and the
// concatenated entries themselves.
type Tree struct {
	Entries []TreeEntry
}

// Lookup finds the entry named name, if any.
func (t Tree) Lookup(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

const treeVersion uint32 = 1

// Marshal encodes t in the on-disk form described by spec.md §6:
// u32 version (=1), u32 count, then per entry a u32-length-prefixed
// name, a one-byte entry type and a u32-length-prefixed object id.
func (t Tree) Marshal() []byte {
	var buf bytes.Buffer

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], treeVersion)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(t.Entries)))
	buf.Write(hdr[:])

	for _, e := range t.Entries {
		writeEntry(&buf, e)
	}

	return buf.Bytes()
}

func writeEntry(buf *bytes.Buffer, e TreeEntry) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Name)))
	buf.Write(lenBuf[:])
	buf.WriteString(e.Name)
	buf.WriteByte(byte(e.Type))

	idBytes := e.ID.Bytes()
	var idLen [4]byte
	binary.LittleEndian.PutUint32(idLen[:], uint32(len(idBytes)))
	buf.Write(idLen[:])
	buf.Write(idBytes)
}

// UnmarshalTree decodes a Tree from its on-disk form. Deserialization
// rejects trailing garbage, per spec.md §6.
func UnmarshalTree(data []byte) (Tree, error) {
	if len(data) < 8 {
		return Tree{}, fmt.Errorf("model: tree data too short: %d bytes", len(data))
	}

	version := binary.LittleEndian.Uint32(data[0:4])
	if version != treeVersion {
		return Tree{}, fmt.Errorf("model: unsupported tree version %d", version)
	}
	count := binary.LittleEndian.Uint32(data[4:8])

	r := data[8:]
	entries := make([]TreeEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, rest, err := readEntry(r)
		if err != nil {
			return Tree{}, fmt.Errorf("model: entry %d: %w", i, err)
		}
		entries = append(entries, e)
		r = rest
	}

	if len(r) != 0 {
		return Tree{}, fmt.Errorf("model: %d trailing bytes after tree entries", len(r))
	}

	return Tree{Entries: entries}, nil
}

func readEntry(r []byte) (TreeEntry, []byte, error) {
	if len(r) < 4 {
		return TreeEntry{}, nil, fmt.Errorf("truncated name length")
	}
	nameLen := binary.LittleEndian.Uint32(r[0:4])
	r = r[4:]
	if uint32(len(r)) < nameLen {
		return TreeEntry{}, nil, fmt.Errorf("truncated name")
	}
	name := string(r[:nameLen])
	r = r[nameLen:]

	if len(r) < 1 {
		return TreeEntry{}, nil, fmt.Errorf("truncated type tag")
	}
	typ := EntryType(r[0])
	r = r[1:]

	if len(r) < 4 {
		return TreeEntry{}, nil, fmt.Errorf("truncated id length")
	}
	idLen := binary.LittleEndian.Uint32(r[0:4])
	r = r[4:]
	if uint32(len(r)) < idLen {
		return TreeEntry{}, nil, fmt.Errorf("truncated id")
	}
	id := objectid.FromBytes(r[:idLen])
	r = r[idLen:]

	return TreeEntry{Name: name, ID: id, Type: typ}, r, nil
}
