package config

import "testing"

func TestRepoTypeUnmarshalAcceptsKnownValues(t *testing.T) {
	var r RepoType
	if err := r.UnmarshalText([]byte("Git")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if r != RepoTypeGit {
		t.Fatalf("got %q", r)
	}
}

func TestRepoTypeUnmarshalRejectsUnknownValue(t *testing.T) {
	var r RepoType
	if err := r.UnmarshalText([]byte("svn")); err == nil {
		t.Fatalf("expected error for unsupported repo-type")
	}
}
