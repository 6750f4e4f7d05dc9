package config

import (
	"fmt"
	"slices"
	"strings"
)

// RepoType names the version-control system backing a mount's
// repo-source, per spec.md §6's repo-type enum.
type RepoType string

const (
	RepoTypeGit RepoType = "git"
	RepoTypeHg  RepoType = "hg"
)

var validRepoTypes = []string{string(RepoTypeGit), string(RepoTypeHg)}

func (r *RepoType) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	if !slices.Contains(validRepoTypes, v) {
		return fmt.Errorf("config: invalid repo-type %q, must be one of %v", string(text), validRepoTypes)
	}
	*r = RepoType(v)
	return nil
}

func (r RepoType) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

// BindMount is one entry of the bind-mounts list: a client-visible path
// bound to a path inside the mount's working copy.
type BindMount struct {
	ClientPath ResolvedPath `yaml:"client-path" mapstructure:"client-path"`
	MountPath  ResolvedPath `yaml:"mount-path" mapstructure:"mount-path"`
}
