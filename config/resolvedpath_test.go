package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePathExpandsTilde(t *testing.T) {
	got, err := resolvePath("~/state.yaml")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}
	if want := filepath.Join(home, "state.yaml"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolvePathAbsoluteUnchanged(t *testing.T) {
	got, err := resolvePath("/var/lib/monofs/state.yaml")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if got != "/var/lib/monofs/state.yaml" {
		t.Fatalf("got %q", got)
	}
}

func TestResolvePathRelativeJoinsCwd(t *testing.T) {
	got, err := resolvePath("config.yaml")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if want := filepath.Join(cwd, "config.yaml"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolvePathEmptyStaysEmpty(t *testing.T) {
	got, err := resolvePath("")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestResolvePathUsesParentProcessDirWhenSet(t *testing.T) {
	t.Setenv(ParentProcessDirEnv, "/parent/dir")
	got, err := resolvePath("repo/config.yaml")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if want := "/parent/dir/repo/config.yaml"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolvePathInterpolatesHomeAndUser(t *testing.T) {
	t.Setenv("HOME", "/home/ada")
	t.Setenv("USER", "ada")
	got, err := resolvePath("$HOME/.monofs/$USER")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if want := "/home/ada/.monofs/ada"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolvedPathUnmarshalText(t *testing.T) {
	var p ResolvedPath
	if err := p.UnmarshalText([]byte("/abs/path")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if p != "/abs/path" {
		t.Fatalf("got %q", p)
	}
}
