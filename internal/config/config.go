package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/router"
)

// ErrConfigValidation is a sentinel that wraps config validation failures
// (as opposed to TOML syntax, filesystem, or other loading errors).
// Callers can use errors.Is(err, ErrConfigValidation) to distinguish
// validation problems from other LoadConfig failure modes.
var ErrConfigValidation = errors.New(messages.ConfigValidationFailed)

// DefaultFile is the config file read when --config is not given.
const DefaultFile = "patchmirror.toml"

const (
	defaultExportPath = "export"
	defaultLogLevel   = "warn"
	defaultTimeout    = 30 * time.Second
	defaultMaxBytes   = int64(512 * 1024 * 1024)
)

// Config is the patchmirror configuration file.
type Config struct {
	BasePath       string            `toml:"base_path"`
	ExportPath     string            `toml:"export_path"`
	GuessHashes    bool              `toml:"guess_hashes"`
	ExportSymlinks *bool             `toml:"export_symlinks"`
	LogLevel       string            `toml:"log_level"`
	Languages      []string          `toml:"languages"`
	Upstream       UpstreamConfig    `toml:"upstream"`
	StoragePaths   map[string]string `toml:"storage_paths"`

	router  *router.Router
	timeout time.Duration
}

// UpstreamConfig locates the patch-distribution service.
type UpstreamConfig struct {
	URL              string `toml:"url"`
	Timeout          string `toml:"timeout"`
	MaxDownloadBytes int64  `toml:"max_download_bytes"`
}

// LoadConfig reads the config file at path and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(messages.ConfigMissingFileFmt, path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses and validates config TOML data from a source identifier.
// data is the TOML content; source is used in error messages.
func ParseConfig(data []byte, source string) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf(messages.ConfigInvalidConfigFmt, source, err)
	}
	if err := decodeStrict(data); err != nil {
		return nil, fmt.Errorf("%w: "+messages.ConfigUnrecognizedKeysFmt, ErrConfigValidation, source, err)
	}
	if err := cfg.Validate(source); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	return &cfg, nil
}

// decodeStrict re-decodes the TOML data with strict unknown-field rejection.
// This catches misspelled keys that toml.Unmarshal silently ignores.
func decodeStrict(data []byte) error {
	var cfg Config
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&cfg)
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		return errors.New(strict.String())
	}
	return err
}

// Router returns the storage router built from storage_paths.
func (c *Config) Router() *router.Router {
	return c.router
}

// Symlinks reports whether numbered exports link unchanged files.
func (c *Config) Symlinks() bool {
	return c.ExportSymlinks == nil || *c.ExportSymlinks
}

// UpstreamTimeout returns the per-request timeout of the upstream client.
func (c *Config) UpstreamTimeout() time.Duration {
	return c.timeout
}
