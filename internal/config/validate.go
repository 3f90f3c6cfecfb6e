package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/conn-castle/patchmirror/internal/logging"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/router"
)

// Validate ensures the config is complete and consistent, fills defaults and
// builds the storage router. Routing errors surface here, at load time.
func (c *Config) Validate(path string) error {
	if strings.TrimSpace(c.BasePath) == "" {
		return fmt.Errorf(messages.ConfigBasePathRequiredFmt, path)
	}
	base, err := homedir.Expand(c.BasePath)
	if err != nil {
		return fmt.Errorf(messages.ConfigBasePathInvalidFmt, path, err)
	}
	c.BasePath = base

	if c.ExportPath == "" {
		c.ExportPath = defaultExportPath
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if !logging.Valid(c.LogLevel) {
		return fmt.Errorf(messages.ConfigLogLevelInvalidFmt, path, c.LogLevel)
	}

	c.timeout = defaultTimeout
	if c.Upstream.Timeout != "" {
		d, err := time.ParseDuration(c.Upstream.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf(messages.ConfigTimeoutInvalidFmt, path, c.Upstream.Timeout)
		}
		c.timeout = d
	}
	if c.Upstream.MaxDownloadBytes < 0 {
		return fmt.Errorf(messages.ConfigMaxBytesInvalidFmt, path)
	}
	if c.Upstream.MaxDownloadBytes == 0 {
		c.Upstream.MaxDownloadBytes = defaultMaxBytes
	}

	for i, lang := range c.Languages {
		if strings.TrimSpace(lang) == "" {
			return fmt.Errorf(messages.ConfigLanguageEmptyFmt, path, i)
		}
	}

	r, err := router.Parse(c.StoragePaths)
	if err != nil {
		return fmt.Errorf(messages.ConfigStoragePathsFmt, path, err)
	}
	c.router = r
	return nil
}
