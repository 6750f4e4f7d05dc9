package localstore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGet(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(FamilyBlob, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	res, err := s.Get(FamilyBlob, []byte("k1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !res.Found || string(res.Value) != "v1" {
		t.Fatalf("got %+v", res)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := openTestStore(t)

	res, err := s.Get(FamilyTree, []byte("absent"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Found {
		t.Fatalf("expected key to be absent")
	}
}

func TestWriteBatchNotVisibleUntilFlush(t *testing.T) {
	s := openTestStore(t)

	batch, err := s.BeginWrite(0)
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	batch.Put(FamilyBlobMetadata, []byte("k"), []byte("v"))

	if res, _ := s.Get(FamilyBlobMetadata, []byte("k")); res.Found {
		t.Fatalf("write must not be visible before Flush")
	}

	if err := batch.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	res, err := s.Get(FamilyBlobMetadata, []byte("k"))
	if err != nil || !res.Found {
		t.Fatalf("expected key visible after Flush, err=%v res=%+v", err, res)
	}
}

func TestClearKeySpace(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(FamilyTree, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.ClearKeySpace(FamilyTree); err != nil {
		t.Fatalf("ClearKeySpace: %v", err)
	}

	res, err := s.Get(FamilyTree, []byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Found {
		t.Fatalf("expected key space to be cleared")
	}
}

func TestGetUnknownFamily(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Get(Family("bogus"), []byte("k")); err == nil {
		t.Fatalf("expected error for unknown family")
	}
}
