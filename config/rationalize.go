package config

import (
	"fmt"

	"github.com/monofs/monofs/objectid"
)

// Rationalize validates and derives fields after decode, the way
// cfg.Rationalize finalizes gcsfuse's flags.
func Rationalize(c *Config) error {
	if c.RepoType == "" {
		c.RepoType = RepoTypeGit
	}
	if c.RepoSource == "" {
		return fmt.Errorf("config: repo-source is required")
	}
	if c.Logging.Severity == "" {
		c.Logging.Severity = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}

// SnapshotObjectID parses SnapshotID as a hex-encoded object id. An
// empty SnapshotID means "whatever the backing store reports as HEAD",
// so it resolves to the zero ID rather than an error.
func (c Config) SnapshotObjectID() (objectid.ID, error) {
	if c.SnapshotID == "" {
		return objectid.ID{}, nil
	}
	id, err := objectid.FromHex(c.SnapshotID)
	if err != nil {
		return objectid.ID{}, fmt.Errorf("config: parsing snapshot-id: %w", err)
	}
	return id, nil
}
