package config

import "errors"

// Error variables for config loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrFailuresDirEmpty   = errors.New("failures_dir cannot be empty")
	ErrInvalidWorkers     = errors.New("workers must be >= 0")
	ErrInvalidInterval    = errors.New("report_interval must be > 0")
	ErrInvalidDuration    = errors.New("duration must be >= 0")
	ErrInvalidLogLevel    = errors.New("invalid log_level")
	ErrInvalidLogFormat   = errors.New("log_format must be text or json")
)
