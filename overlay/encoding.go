package overlay

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/monofs/monofs/vfspath"
)

// MarshalDirEntries encodes entries in the same length-prefixed style
// model.Tree uses for its own on-disk form (model/model.go), since the
// overlay's directory payload is structurally identical: a count
// followed by repeated (name, mode, hash, materialized) records.
// Exported so the fsoverlay and dboverlay backends can share one wire
// format.
func MarshalDirEntries(entries []DirEntry) []byte {
	var buf bytes.Buffer

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(entries)))
	buf.Write(hdr[:])

	for _, e := range entries {
		writeDirEntry(&buf, e)
	}
	return buf.Bytes()
}

func writeDirEntry(buf *bytes.Buffer, e DirEntry) {
	var lenBuf [4]byte

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Name)))
	buf.Write(lenBuf[:])
	buf.WriteString(string(e.Name))

	var modeBuf [4]byte
	binary.LittleEndian.PutUint32(modeBuf[:], e.Mode)
	buf.Write(modeBuf[:])

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.SourceHash)))
	buf.Write(lenBuf[:])
	buf.Write(e.SourceHash)

	if e.Materialized {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

// UnmarshalDirEntries decodes a payload produced by MarshalDirEntries.
func UnmarshalDirEntries(data []byte) ([]DirEntry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("overlay: directory payload too short: %d bytes", len(data))
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	r := data[4:]

	entries := make([]DirEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, rest, err := readDirEntry(r)
		if err != nil {
			return nil, fmt.Errorf("overlay: entry %d: %w", i, err)
		}
		entries = append(entries, e)
		r = rest
	}
	if len(r) != 0 {
		return nil, fmt.Errorf("overlay: %d trailing bytes after directory entries", len(r))
	}
	return entries, nil
}

func readDirEntry(r []byte) (DirEntry, []byte, error) {
	if len(r) < 4 {
		return DirEntry{}, nil, fmt.Errorf("truncated name length")
	}
	nameLen := binary.LittleEndian.Uint32(r[0:4])
	r = r[4:]
	if uint32(len(r)) < nameLen {
		return DirEntry{}, nil, fmt.Errorf("truncated name")
	}
	name := string(r[:nameLen])
	r = r[nameLen:]

	if len(r) < 4 {
		return DirEntry{}, nil, fmt.Errorf("truncated mode")
	}
	mode := binary.LittleEndian.Uint32(r[0:4])
	r = r[4:]

	if len(r) < 4 {
		return DirEntry{}, nil, fmt.Errorf("truncated hash length")
	}
	hashLen := binary.LittleEndian.Uint32(r[0:4])
	r = r[4:]
	if uint32(len(r)) < hashLen {
		return DirEntry{}, nil, fmt.Errorf("truncated hash")
	}
	var hash []byte
	if hashLen > 0 {
		hash = append([]byte(nil), r[:hashLen]...)
	}
	r = r[hashLen:]

	if len(r) < 1 {
		return DirEntry{}, nil, fmt.Errorf("truncated materialized flag")
	}
	materialized := r[0] != 0
	r = r[1:]

	return DirEntry{Name: vfspath.Component(name), Mode: mode, SourceHash: hash, Materialized: materialized}, r, nil
}
