// Package config loads the per-repository configuration described in
// spec.md §6 from a YAML file under a mount's state directory, using the
// same viper+mapstructure decode-hook approach as the teacher's cfg
// package.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the per-repository configuration read from
// <state-dir>/config.yaml.
type Config struct {
	SnapshotID string `yaml:"snapshot-id" mapstructure:"snapshot-id"`

	OverlayPath ResolvedPath `yaml:"overlay-path" mapstructure:"overlay-path"`

	RepoType RepoType `yaml:"repo-type" mapstructure:"repo-type"`

	RepoSource ResolvedPath `yaml:"repo-source" mapstructure:"repo-source"`

	HooksPath ResolvedPath `yaml:"hooks-path" mapstructure:"hooks-path"`

	BindMounts []BindMount `yaml:"bind-mounts" mapstructure:"bind-mounts"`

	CloneSuccessPath ResolvedPath `yaml:"clone-success-path" mapstructure:"clone-success-path"`

	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	Debug DebugConfig `yaml:"debug" mapstructure:"debug"`
}

// LoggingConfig configures monofslog per spec.md's ambient logging
// stack.
type LoggingConfig struct {
	Severity string `yaml:"severity" mapstructure:"severity"`

	Format string `yaml:"format" mapstructure:"format"`

	FilePath ResolvedPath `yaml:"file-path" mapstructure:"file-path"`
}

// DebugConfig mirrors the teacher's DebugConfig: flags that exist for
// diagnosing the daemon itself, not for changing mount behavior.
type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation" mapstructure:"exit-on-invariant-violation"`

	LogMutex bool `yaml:"log-mutex" mapstructure:"log-mutex"`
}

// DecodeHook composes the custom decoders this config's types need on
// top of mapstructure's defaults, mirroring cfg.DecodeHook.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Load reads configFile (if non-empty) into viper, unmarshals it into a
// Config using DecodeHook, and Rationalizes the result. An empty
// configFile unmarshals whatever state viper already holds, which
// Rationalize then fills in with defaults.
func Load(configFile string) (Config, error) {
	if configFile != "" {
		resolved, err := resolvePath(configFile)
		if err != nil {
			return Config{}, fmt.Errorf("config: resolving config file path: %w", err)
		}
		viper.SetConfigFile(resolved)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var c Config
	if err := viper.Unmarshal(&c, viper.DecodeHook(DecodeHook())); err != nil {
		return Config{}, fmt.Errorf("config: unmarshalling: %w", err)
	}
	if err := Rationalize(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
