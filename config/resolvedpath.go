package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ParentProcessDirEnv lets a child process (the daemon forked by the
// privileged helper, or a takeover successor) resolve relative paths
// against the directory the parent process started in rather than its
// own, possibly different, working directory.
const ParentProcessDirEnv = "MONOFS_PARENT_PROCESS_DIR"

// ResolvedPath is an absolute, interpolated path. Fields of this type
// decode through resolvePath so that "~/state" and "./state" behave the
// same regardless of the daemon's current working directory.
type ResolvedPath string

func (p *ResolvedPath) UnmarshalText(text []byte) error {
	resolved, err := resolvePath(string(text))
	if err != nil {
		return err
	}
	*p = ResolvedPath(resolved)
	return nil
}

func (p ResolvedPath) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

// resolvePath expands HOME/USER/USER_ID references and a leading "~",
// then makes the result absolute. An empty path resolves to itself: an
// unset optional path option should stay unset, not become the cwd.
func resolvePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path = interpolateEnv(path)

	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	if filepath.IsAbs(path) {
		return path, nil
	}

	base := os.Getenv(ParentProcessDirEnv)
	if base == "" {
		var err error
		base, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(base, path), nil
}

// interpolateEnv replaces $HOME, $USER and $USER_ID references (the
// three variables spec.md names for path-typed options) the way
// os.Expand would, but without touching any other $VAR in the string.
func interpolateEnv(path string) string {
	// $USER_ID precedes $USER: strings.Replacer tries patterns in
	// argument order, and $USER is a prefix of $USER_ID.
	replacer := strings.NewReplacer(
		"$HOME", os.Getenv("HOME"),
		"${HOME}", os.Getenv("HOME"),
		"$USER_ID", os.Getenv("USER_ID"),
		"${USER_ID}", os.Getenv("USER_ID"),
		"$USER", os.Getenv("USER"),
		"${USER}", os.Getenv("USER"),
	)
	return replacer.Replace(path)
}
