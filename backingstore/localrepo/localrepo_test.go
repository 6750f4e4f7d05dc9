package localrepo

import (
	"context"
	"testing"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/objectid"
)

func fc() backingstore.FetchContext {
	return backingstore.FetchContext{Context: context.Background()}
}

func TestPutAndGetBlob(t *testing.T) {
	r := New()
	id := r.PutBlob([]byte("hello"))

	b, err := r.GetBlob(fc(), id)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(b.Contents) != "hello" {
		t.Fatalf("got %q", b.Contents)
	}
}

func TestGetBlobNotFound(t *testing.T) {
	r := New()
	id, err := objectid.FromHex("deadbeef")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}

	if _, err := r.GetBlob(fc(), id); monoerr.KindOf(err) != monoerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPutAndGetRootTree(t *testing.T) {
	r := New()
	blobID := r.PutBlob([]byte("x"))
	tree := model.Tree{Entries: []model.TreeEntry{{Name: "x.txt", ID: blobID, Type: model.RegularFile}}}
	treeID := r.PutTree(tree)
	r.SetRoot(treeID)

	got, err := r.GetRootTree(fc(), treeID)
	if err != nil {
		t.Fatalf("GetRootTree: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Name != "x.txt" {
		t.Fatalf("got %+v", got)
	}
}
