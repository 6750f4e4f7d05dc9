package model

import (
	"testing"

	"github.com/monofs/monofs/objectid"
)

func TestTreeMarshalRoundTrip(t *testing.T) {
	tr := Tree{
		Entries: []TreeEntry{
			{Name: "a.txt", ID: objectid.Hash([]byte("a")), Type: RegularFile},
			{Name: "run.sh", ID: objectid.Hash([]byte("b")), Type: ExecutableFile},
			{Name: "link", ID: objectid.Hash([]byte("c")), Type: Symlink},
			{Name: "sub", ID: objectid.Hash([]byte("d")), Type: Tree_},
		},
	}

	data := tr.Marshal()
	got, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}

	if len(got.Entries) != len(tr.Entries) {
		t.Fatalf("got %d entries, want %d", len(got.Entries), len(tr.Entries))
	}
	for i, e := range got.Entries {
		want := tr.Entries[i]
		if e.Name != want.Name || e.Type != want.Type || !e.ID.Equal(want.ID) {
			t.Fatalf("entry %d: got %+v, want %+v", i, e, want)
		}
	}
}

func TestUnmarshalTreeRejectsTrailingGarbage(t *testing.T) {
	tr := Tree{Entries: []TreeEntry{{Name: "a", ID: objectid.Hash([]byte("a")), Type: RegularFile}}}
	data := append(tr.Marshal(), 0xff, 0xff)

	if _, err := UnmarshalTree(data); err == nil {
		t.Fatalf("expected trailing garbage to be rejected")
	}
}

func TestUnmarshalTreeRejectsBadVersion(t *testing.T) {
	data := []byte{2, 0, 0, 0, 0, 0, 0, 0}
	if _, err := UnmarshalTree(data); err == nil {
		t.Fatalf("expected unsupported version to be rejected")
	}
}

func TestTreeLookup(t *testing.T) {
	id := objectid.Hash([]byte("x"))
	tr := Tree{Entries: []TreeEntry{{Name: "x.txt", ID: id, Type: RegularFile}}}

	e, ok := tr.Lookup("x.txt")
	if !ok || !e.ID.Equal(id) {
		t.Fatalf("Lookup failed to find entry")
	}

	if _, ok := tr.Lookup("missing"); ok {
		t.Fatalf("Lookup should not find missing entry")
	}
}

func TestEntryTypeMode(t *testing.T) {
	cases := map[EntryType]uint32{
		RegularFile:    0644,
		ExecutableFile: 0755,
		Symlink:        0777,
		Tree_:          0755,
	}
	for typ, want := range cases {
		if got := typ.Mode(); got != want {
			t.Errorf("%v.Mode() = %o, want %o", typ, got, want)
		}
	}
}

func TestBlobMetadata(t *testing.T) {
	b := Blob{Contents: []byte("hello")}
	b.ID = objectid.Hash(b.Contents)
	md := b.Metadata()
	if md.Size != int64(len(b.Contents)) {
		t.Fatalf("got size %d, want %d", md.Size, len(b.Contents))
	}
	if !md.SHA1.Equal(b.ID) {
		t.Fatalf("metadata hash does not match blob id")
	}
}
