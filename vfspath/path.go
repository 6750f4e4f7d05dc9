// Package vfspath implements the canonical path types used across
// monofs: path components (a single name), relative paths (a slash
// joined sequence of components, as used for journal and tree-entry
// bookkeeping) and absolute paths (rooted at the mount point).
//
// Grounded on the validation discipline in the teacher's
// fs/inode/dir.go (IsDirName, ConflictingFileNameSuffix, and the name
// invariants enforced in checkInvariants), generalized from "GCS
// object name" to "path component", per spec.md §3.
package vfspath

import (
	"fmt"
	"path"
	"strings"
)

// Component is a single path element. It never contains a slash and is
// never "." or "..".
type Component string

// NewComponent validates and returns a path component.
func NewComponent(s string) (Component, error) {
	if s == "" {
		return "", fmt.Errorf("vfspath: empty path component")
	}
	if strings.Contains(s, "/") {
		return "", fmt.Errorf("vfspath: path component %q contains a slash", s)
	}
	if s == "." || s == ".." {
		return "", fmt.Errorf("vfspath: illegal path component %q", s)
	}
	return Component(s), nil
}

// MustComponent is like NewComponent but panics on an invalid
// component; for use with literal constants.
func MustComponent(s string) Component {
	c, err := NewComponent(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Component) String() string { return string(c) }

// Relative is a slash-joined sequence of validated components, rooted
// at the mount's root tree. The empty Relative path names the root.
type Relative struct {
	clean string
}

// Root is the relative path naming the mount root.
var Root = Relative{}

// NewRelative validates and canonicalizes a relative path. Leading and
// trailing slashes are rejected; "." and ".." segments are rejected
// rather than resolved, matching the teacher's refusal to interpret
// such components in GCS object names.
func NewRelative(p string) (Relative, error) {
	if p == "" {
		return Root, nil
	}
	if strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return Relative{}, fmt.Errorf("vfspath: relative path %q must not begin or end with '/'", p)
	}
	for _, part := range strings.Split(p, "/") {
		if _, err := NewComponent(part); err != nil {
			return Relative{}, fmt.Errorf("vfspath: relative path %q: %w", p, err)
		}
	}
	return Relative{clean: p}, nil
}

// Join returns the relative path naming child within r.
func (r Relative) Join(child Component) Relative {
	if r.clean == "" {
		return Relative{clean: string(child)}
	}
	return Relative{clean: r.clean + "/" + string(child)}
}

// IsRoot reports whether r names the mount root.
func (r Relative) IsRoot() bool { return r.clean == "" }

// Base returns the final component of r. Panics if r is the root.
func (r Relative) Base() Component {
	if r.IsRoot() {
		panic("vfspath: Base called on the root path")
	}
	return Component(path.Base(r.clean))
}

// Dir returns the parent of r. Panics if r is the root.
func (r Relative) Dir() Relative {
	if r.IsRoot() {
		panic("vfspath: Dir called on the root path")
	}
	d := path.Dir(r.clean)
	if d == "." {
		return Root
	}
	return Relative{clean: d}
}

func (r Relative) String() string { return r.clean }

// Absolute is a path rooted at the mount point, e.g. for bind-mount
// configuration (spec.md §6) and kernel-channel debugging output.
type Absolute struct {
	clean string
}

// NewAbsolute validates an absolute path. It must begin with the
// platform directory separator, per spec.md §3.
func NewAbsolute(p string) (Absolute, error) {
	if !strings.HasPrefix(p, "/") {
		return Absolute{}, fmt.Errorf("vfspath: absolute path %q must begin with '/'", p)
	}
	return Absolute{clean: path.Clean(p)}, nil
}

func (a Absolute) String() string { return a.clean }

// Join returns the absolute path naming rel within a.
func (a Absolute) Join(rel Relative) Absolute {
	if rel.IsRoot() {
		return a
	}
	return Absolute{clean: path.Join(a.clean, rel.clean)}
}
