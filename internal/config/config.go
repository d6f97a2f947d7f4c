// Package config loads the fuzzer configuration from layered JSONC files and
// command line overrides.
package config

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tailscale/hujson"
)

// FileName is the project config file looked up in the work directory.
const FileName = ".zkfuzz.json"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Duration is a [time.Duration] encoded as a Go duration string ("10s").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(v)

	return nil
}

// Config holds all configuration options.
type Config struct {
	// Workers is the number of fuzzing goroutines; 0 picks one per CPU minus
	// one.
	Workers        int      `json:"workers"`
	ReportInterval Duration `json:"report_interval"`
	FailuresDir    string   `json:"failures_dir"`
	// Generators restricts the run to the named generators; empty runs all.
	Generators []string `json:"generators"`
	// Seed 0 draws a random seed per run.
	Seed      uint64   `json:"seed"`
	MaxTrials uint64   `json:"max_trials"`
	Duration  Duration `json:"duration"`
	LogLevel  string   `json:"log_level"`
	LogFormat string   `json:"log_format"`
	// MetricsAddr is the listen address of the Prometheus endpoint; empty
	// disables it.
	MetricsAddr string `json:"metrics_addr"`

	// Resolved (computed, not serialized)
	EffectiveCwd   string `json:"-"`
	FailuresDirAbs string `json:"-"`

	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// Partial is a config layer: a file or the command line. Nil fields are
// not set by that layer.
type Partial struct {
	Workers        *int      `json:"workers"`
	ReportInterval *Duration `json:"report_interval"`
	FailuresDir    *string   `json:"failures_dir"`
	Generators     *[]string `json:"generators"`
	Seed           *uint64   `json:"seed"`
	MaxTrials      *uint64   `json:"max_trials"`
	Duration       *Duration `json:"duration"`
	LogLevel       *string   `json:"log_level"`
	LogFormat      *string   `json:"log_format"`
	MetricsAddr    *string   `json:"metrics_addr"`
}

// With returns p with every field set in o replacing p's value.
func (p Partial) With(o Partial) Partial {
	p.Workers = cmp.Or(o.Workers, p.Workers)
	p.ReportInterval = cmp.Or(o.ReportInterval, p.ReportInterval)
	p.FailuresDir = cmp.Or(o.FailuresDir, p.FailuresDir)
	p.Generators = cmp.Or(o.Generators, p.Generators)
	p.Seed = cmp.Or(o.Seed, p.Seed)
	p.MaxTrials = cmp.Or(o.MaxTrials, p.MaxTrials)
	p.Duration = cmp.Or(o.Duration, p.Duration)
	p.LogLevel = cmp.Or(o.LogLevel, p.LogLevel)
	p.LogFormat = cmp.Or(o.LogFormat, p.LogFormat)
	p.MetricsAddr = cmp.Or(o.MetricsAddr, p.MetricsAddr)

	return p
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		ReportInterval: Duration(10 * time.Second),
		FailuresDir:    filepath.Join(".zkfuzz", "failures"),
		LogLevel:       "info",
		LogFormat:      LogFormatText,
	}
}

// globalPath returns $XDG_CONFIG_HOME/zkfuzz/config.json or
// ~/.config/zkfuzz/config.json, or "" if neither can be determined.
func globalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "zkfuzz", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "zkfuzz", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Partial           // CLI flags the user set
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config (~/.config/zkfuzz/config.json or $XDG_CONFIG_HOME/zkfuzz/config.json)
// 3. Project config file (.zkfuzz.json in the work dir, if it exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. CLI overrides.
//
// All paths in the returned Config are resolved to absolute paths.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		layer, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, layer)
			cfg.Sources.Global = path
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false

	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	layer, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, layer)
		cfg.Sources.Project = projectPath
	}

	cfg = merge(cfg, input.Overrides)

	err = Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.FailuresDir) {
		cfg.FailuresDirAbs = cfg.FailuresDir
	} else {
		cfg.FailuresDirAbs = filepath.Join(workDir, cfg.FailuresDir)
	}

	return cfg, nil
}

// loadFile loads one layer. If mustExist is false, a missing file is not an
// error and loaded is false.
func loadFile(path string, mustExist bool) (Partial, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Partial{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Partial{}, false, nil
		}

		return Partial{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	layer, err := Parse(data)
	if err != nil {
		return Partial{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if layer.FailuresDir != nil && *layer.FailuresDir == "" {
		return Partial{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrFailuresDirEmpty)
	}

	return layer, true, nil
}

// Parse decodes a JSONC document. Unknown keys are rejected.
func Parse(data []byte) (Partial, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Partial{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var p Partial

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	err = dec.Decode(&p)
	if err != nil {
		return Partial{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return p, nil
}

func merge(base Config, layer Partial) Config {
	if layer.Workers != nil {
		base.Workers = *layer.Workers
	}

	if layer.ReportInterval != nil {
		base.ReportInterval = *layer.ReportInterval
	}

	if layer.FailuresDir != nil {
		base.FailuresDir = *layer.FailuresDir
	}

	if layer.Generators != nil {
		base.Generators = *layer.Generators
	}

	if layer.Seed != nil {
		base.Seed = *layer.Seed
	}

	if layer.MaxTrials != nil {
		base.MaxTrials = *layer.MaxTrials
	}

	if layer.Duration != nil {
		base.Duration = *layer.Duration
	}

	if layer.LogLevel != nil {
		base.LogLevel = *layer.LogLevel
	}

	if layer.LogFormat != nil {
		base.LogFormat = *layer.LogFormat
	}

	if layer.MetricsAddr != nil {
		base.MetricsAddr = *layer.MetricsAddr
	}

	return base
}

// Validate checks a merged config.
func Validate(cfg Config) error {
	switch {
	case cfg.Workers < 0:
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Workers)
	case cfg.ReportInterval <= 0:
		return fmt.Errorf("%w: %s", ErrInvalidInterval, time.Duration(cfg.ReportInterval))
	case cfg.Duration < 0:
		return fmt.Errorf("%w: %s", ErrInvalidDuration, time.Duration(cfg.Duration))
	case cfg.FailuresDir == "":
		return ErrFailuresDirEmpty
	case cfg.LogFormat != LogFormatText && cfg.LogFormat != LogFormatJSON:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, cfg.LogFormat)
	}

	_, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
	}

	return nil
}

// Format renders cfg as indented JSON.
func Format(cfg Config) (string, error) {
	if cfg.Generators == nil {
		cfg.Generators = []string{}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}
