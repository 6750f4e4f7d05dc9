package config

import "testing"

func TestRationalizeDefaultsRepoTypeToGit(t *testing.T) {
	c := Config{RepoSource: "/repos/foo"}
	if err := Rationalize(&c); err != nil {
		t.Fatalf("Rationalize: %v", err)
	}
	if c.RepoType != RepoTypeGit {
		t.Fatalf("got repo-type %q, want git", c.RepoType)
	}
}

func TestRationalizeRequiresRepoSource(t *testing.T) {
	c := Config{}
	if err := Rationalize(&c); err == nil {
		t.Fatalf("expected error when repo-source is unset")
	}
}

func TestRationalizeDefaultsLogging(t *testing.T) {
	c := Config{RepoSource: "/repos/foo"}
	if err := Rationalize(&c); err != nil {
		t.Fatalf("Rationalize: %v", err)
	}
	if c.Logging.Severity != "INFO" || c.Logging.Format != "text" {
		t.Fatalf("got logging %+v", c.Logging)
	}
}

func TestSnapshotObjectIDEmptyIsZero(t *testing.T) {
	c := Config{}
	id, err := c.SnapshotObjectID()
	if err != nil {
		t.Fatalf("SnapshotObjectID: %v", err)
	}
	if !id.IsZero() {
		t.Fatalf("got non-zero id for empty snapshot-id")
	}
}

func TestSnapshotObjectIDRejectsInvalidHex(t *testing.T) {
	c := Config{SnapshotID: "not-hex!"}
	if _, err := c.SnapshotObjectID(); err == nil {
		t.Fatalf("expected error for invalid snapshot-id")
	}
}
