package vfspath

import "testing"

func TestNewComponentRejectsSlashAndDots(t *testing.T) {
	cases := []string{"", "a/b", ".", ".."}
	for _, c := range cases {
		if _, err := NewComponent(c); err == nil {
			t.Errorf("NewComponent(%q) should have failed", c)
		}
	}

	if _, err := NewComponent("foo.txt"); err != nil {
		t.Errorf("NewComponent(foo.txt) should succeed: %v", err)
	}
}

func TestRelativeJoinAndDir(t *testing.T) {
	r := Root.Join(MustComponent("a")).Join(MustComponent("b"))
	if r.String() != "a/b" {
		t.Fatalf("got %q", r.String())
	}
	if r.Base() != Component("b") {
		t.Fatalf("got base %q", r.Base())
	}
	if r.Dir().String() != "a" {
		t.Fatalf("got dir %q", r.Dir())
	}
	if !r.Dir().Dir().IsRoot() {
		t.Fatalf("expected root")
	}
}

func TestNewRelativeRejectsSlashes(t *testing.T) {
	for _, p := range []string{"/a", "a/", "a//b"} {
		if _, err := NewRelative(p); err == nil {
			t.Errorf("NewRelative(%q) should have failed", p)
		}
	}
}

func TestAbsoluteJoin(t *testing.T) {
	root, err := NewAbsolute("/mnt/repo")
	if err != nil {
		t.Fatalf("NewAbsolute: %v", err)
	}
	rel, _ := NewRelative("a/b")
	got := root.Join(rel).String()
	if got != "/mnt/repo/a/b" {
		t.Fatalf("got %q", got)
	}
}
