package dboverlay

import (
	"path/filepath"
	"testing"

	"github.com/monofs/monofs/overlay"
)

func newTestOverlay(t *testing.T) *Overlay {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.db")
	o, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { o.db.Close() })
	return o
}

func TestSaveAndLoadOverlayFile(t *testing.T) {
	o := newTestOverlay(t)

	if err := o.SaveOverlayFile(1, []byte("contents"), []byte("sha1sum")); err != nil {
		t.Fatalf("SaveOverlayFile: %v", err)
	}

	contents, sha1, found, err := o.LoadOverlayFile(1)
	if err != nil {
		t.Fatalf("LoadOverlayFile: %v", err)
	}
	if !found || string(contents) != "contents" || string(sha1) != "sha1sum" {
		t.Fatalf("got contents=%q sha1=%q found=%v", contents, sha1, found)
	}
}

func TestSaveAndLoadOverlayDir(t *testing.T) {
	o := newTestOverlay(t)

	entries := []overlay.DirEntry{{Name: "child", Mode: 0644, Materialized: true}}
	if err := o.SaveOverlayDir(5, entries); err != nil {
		t.Fatalf("SaveOverlayDir: %v", err)
	}

	got, found, err := o.LoadOverlayDir(5)
	if err != nil {
		t.Fatalf("LoadOverlayDir: %v", err)
	}
	if !found || len(got) != 1 || got[0].Name != "child" {
		t.Fatalf("got %+v", got)
	}
}

func TestRemoveOverlayData(t *testing.T) {
	o := newTestOverlay(t)

	if err := o.SaveOverlayFile(2, []byte("x"), nil); err != nil {
		t.Fatalf("SaveOverlayFile: %v", err)
	}
	if err := o.RemoveOverlayData(2); err != nil {
		t.Fatalf("RemoveOverlayData: %v", err)
	}
	if _, _, found, _ := o.LoadOverlayFile(2); found {
		t.Fatalf("expected removed")
	}
}

func TestWatermarkPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.db")
	o, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := o.Close(17); err != nil {
		t.Fatalf("Close: %v", err)
	}

	o2, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer o2.db.Close()

	n, err := o2.Watermark()
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if n != 17 {
		t.Fatalf("got %d, want 17", n)
	}
}
