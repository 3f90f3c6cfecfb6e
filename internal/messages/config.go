package messages

// Config messages for configuration loading and validation.
const (
	// ConfigValidationFailed is the sentinel text for configuration validation errors.
	ConfigValidationFailed = "config validation failed"

	// ConfigMissingFileFmt formats missing config file errors.
	ConfigMissingFileFmt      = "missing config file %s: %w"
	ConfigInvalidConfigFmt    = "invalid config %s: %w"
	ConfigUnrecognizedKeysFmt = "%s: unrecognized config keys: %w"

	ConfigBasePathRequiredFmt = "%s: base_path is required"
	ConfigBasePathInvalidFmt  = "%s: base_path cannot be expanded: %w"
	ConfigLogLevelInvalidFmt  = "%s: log_level %q must be one of debug, info, warn, error, none"
	ConfigTimeoutInvalidFmt   = "%s: upstream.timeout %q must be a positive duration"
	ConfigMaxBytesInvalidFmt  = "%s: upstream.max_download_bytes must not be negative"
	ConfigLanguageEmptyFmt    = "%s: languages[%d] is empty"
	ConfigStoragePathsFmt     = "%s: invalid storage_paths: %w"

	// LoggingInvalidLevelFmt formats unknown log level errors.
	LoggingInvalidLevelFmt = "unknown log level %q"
)
