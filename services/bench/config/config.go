// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the grindbench YAML configuration.
//
// Values are layered: built-in defaults, then the YAML file, then the
// GRINDBENCH_* environment variables, then command-line flags (applied by
// the caller). Parse validates the result and compiles every limit and
// metric selection, so a bad name is reported before any benchmark runs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/grindbench/pkg/logging"
	"github.com/AleutianAI/grindbench/services/bench/baseline"
	"github.com/AleutianAI/grindbench/services/bench/callgrind"
	"github.com/AleutianAI/grindbench/services/bench/flamegraph"
	"github.com/AleutianAI/grindbench/services/bench/metrics"
	"github.com/AleutianAI/grindbench/services/bench/regression"
	"github.com/AleutianAI/grindbench/services/bench/report"
)

// DefaultFileName is looked up in the working directory when no file is
// given.
const DefaultFileName = "grindbench.yaml"

// Environment variables overriding the file.
const (
	EnvBaseline     = "GRINDBENCH_BASELINE"
	EnvSaveBaseline = "GRINDBENCH_SAVE_BASELINE"
	EnvLogLevel     = "GRINDBENCH_LOG_LEVEL"
)

var (
	// ErrInvalidConfig is matched by every configuration error.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConfigError names the configuration key that failed.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config '%s': %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidConfig) true for every ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// =============================================================================
// Schema
// =============================================================================

// Config is the whole configuration file.
type Config struct {
	ProjectRoot string           `yaml:"project_root" validate:"required"`
	OutDir      string           `yaml:"out_dir" validate:"required"`
	Baseline    BaselineConfig   `yaml:"baseline"`
	Limits      LimitsConfig     `yaml:"limits"`
	Report      ReportConfig     `yaml:"report"`
	Flamegraph  FlamegraphConfig `yaml:"flamegraph"`
	Parser      ParserConfig     `yaml:"parser"`
	Parallelism int              `yaml:"parallelism" validate:"gte=1,lte=256"`
	Log         LogConfig        `yaml:"log"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
}

// BaselineConfig selects the baseline store and names.
type BaselineConfig struct {
	// Backend is file, badger or memory.
	Backend string `yaml:"backend" validate:"oneof=file badger memory"`
	Dir     string `yaml:"dir" validate:"required_unless=Backend memory"`

	// Save stores the new run under this name instead of the implicit
	// previous-run baseline.
	Save string `yaml:"save" validate:"baseline_name"`

	// Load uses this saved baseline as the new side, without reading
	// any tool output. Requires Compare.
	Load string `yaml:"load" validate:"baseline_name"`

	// Compare is the baseline the new run is compared against.
	Compare string `yaml:"compare" validate:"required_with=Load,baseline_name"`
}

// LimitsConfig holds the regression limit strings of each tool. An empty
// string keeps the tool's built-in limits.
type LimitsConfig struct {
	Callgrind  string `yaml:"callgrind"`
	Cachegrind string `yaml:"cachegrind"`
	Dhat       string `yaml:"dhat"`
	Errors     string `yaml:"errors"`
	FailFast   bool   `yaml:"fail_fast"`
}

// ReportConfig selects the report output.
type ReportConfig struct {
	Format           string `yaml:"format" validate:"oneof=default json pretty-json"`
	ShowIntermediate bool   `yaml:"show_intermediate"`
	Grouping         bool   `yaml:"grouping"`
	CompareByID      bool   `yaml:"compare_by_id"`

	// CallgrindMetrics is a comma-separated list of metrics and @groups.
	CallgrindMetrics string `yaml:"callgrind_metrics" validate:"required"`

	SummaryFile  string `yaml:"summary_file"`
	BenchfmtFile string `yaml:"benchfmt_file"`
}

// FlamegraphConfig controls the folded-stack output.
type FlamegraphConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Kinds             []string `yaml:"kinds" validate:"required_if=Enabled true,dive,required"`
	Sentinel          string   `yaml:"sentinel"`
	ObjectPlaceholder string   `yaml:"object_placeholder"`
	Pprof             bool     `yaml:"pprof"`
}

// ParserConfig controls how tool output is read.
type ParserConfig struct {
	SkipFailedUnits bool `yaml:"skip_failed_units"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig configures tracing and the metrics textfile.
type TelemetryConfig struct {
	TraceExporter      string `yaml:"trace_exporter" validate:"oneof=none stdout"`
	PrometheusTextfile string `yaml:"prometheus_textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ProjectRoot: ".",
		OutDir:      "target/grindbench",
		Baseline: BaselineConfig{
			Backend: baseline.BackendFile,
			Dir:     "target/grindbench/baselines",
		},
		Report: ReportConfig{
			Format:           string(report.FormatDefault),
			CallgrindMetrics: "@default",
		},
		Flamegraph: FlamegraphConfig{
			Enabled:           true,
			Kinds:             []string{"Ir"},
			ObjectPlaceholder: flamegraph.DefaultObjectPlaceholder,
		},
		Parallelism: 4,
		Log:         LogConfig{Level: "info"},
		Telemetry:   TelemetryConfig{TraceExporter: "none"},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads path on top of the defaults and applies the environment.
//
// An empty path uses DefaultFileName when it exists and the defaults
// otherwise. A named file that does not exist is an error. Unknown keys
// are rejected.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if getenv != nil {
		cfg.ApplyEnv(getenv)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return &ConfigError{Key: "file", Err: err}
	}
	return nil
}

// ApplyEnv overrides the file with the GRINDBENCH_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvBaseline); v != "" {
		c.Baseline.Compare = v
	}
	if v := getenv(EnvSaveBaseline); v != "" {
		c.Baseline.Save = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// =============================================================================
// Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("baseline_name", func(fl validator.FieldLevel) bool {
		return baseline.ValidateName(fl.Field().String()) == nil
	})
	return v
}

// Validate checks the structural rules of the schema.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ConfigError{Key: "config", Err: err}
	}
	fe := fieldErrs[0]
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	return &ConfigError{Key: key, Err: describe(fe)}
}

func describe(fe validator.FieldError) error {
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%q is not one of [%s]", fe.Value(), fe.Param())
	case "baseline_name":
		return baseline.ValidateName(fmt.Sprint(fe.Value()))
	case "required", "required_if", "required_unless", "required_with":
		return errors.New("value is required")
	default:
		return fmt.Errorf("failed '%s' check (value %v)", fe.Tag(), fe.Value())
	}
}

// =============================================================================
// Parsed settings
// =============================================================================

// Settings are the typed values compiled from a Config.
type Settings struct {
	Limits          regression.ToolLimits
	CallgrindKinds  []metrics.EventKind
	FlamegraphKinds []metrics.EventKind
	Sentinel        callgrind.Sentinel
	Format          report.Format
	LogLevel        logging.Level
}

// Parse validates c and compiles its string settings.
//
// Every limit string, metric selection and flamegraph kind is parsed
// here. Errors are *ConfigError values naming the key.
func (c *Config) Parse() (*Settings, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := &Settings{Limits: regression.DefaultToolLimits()}
	var err error

	if s.Limits.Callgrind, err = limitsOr(c.Limits.Callgrind, s.Limits.Callgrind, "limits.callgrind"); err != nil {
		return nil, err
	}
	if s.Limits.Cachegrind, err = limitsOr(c.Limits.Cachegrind, s.Limits.Cachegrind, "limits.cachegrind"); err != nil {
		return nil, err
	}
	if s.Limits.Dhat, err = limitsOr(c.Limits.Dhat, s.Limits.Dhat, "limits.dhat"); err != nil {
		return nil, err
	}
	if s.Limits.Errors, err = limitsOr(c.Limits.Errors, s.Limits.Errors, "limits.errors"); err != nil {
		return nil, err
	}
	s.Limits.Callgrind.FailFast = c.Limits.FailFast
	s.Limits.Cachegrind.FailFast = c.Limits.FailFast
	s.Limits.Dhat.FailFast = c.Limits.FailFast
	s.Limits.Errors.FailFast = c.Limits.FailFast

	if s.CallgrindKinds, err = ParseKinds[metrics.EventKind](c.Report.CallgrindMetrics); err != nil {
		return nil, &ConfigError{Key: "report.callgrind_metrics", Err: err}
	}
	for _, name := range c.Flamegraph.Kinds {
		k, err := metrics.ParseKind[metrics.EventKind](name)
		if err != nil {
			return nil, &ConfigError{Key: "flamegraph.kinds", Err: err}
		}
		s.FlamegraphKinds = append(s.FlamegraphKinds, k)
	}
	s.FlamegraphKinds = lo.Uniq(s.FlamegraphKinds)

	if c.Flamegraph.Sentinel != "" {
		if s.Sentinel, err = callgrind.NewSentinel(c.Flamegraph.Sentinel); err != nil {
			return nil, &ConfigError{Key: "flamegraph.sentinel", Err: err}
		}
	}
	if s.Format, err = report.ParseFormat(c.Report.Format); err != nil {
		return nil, &ConfigError{Key: "report.format", Err: err}
	}
	if s.LogLevel, err = logging.ParseLevel(c.Log.Level); err != nil {
		return nil, &ConfigError{Key: "log.level", Err: err}
	}
	return s, nil
}

func limitsOr[K metrics.Kind](raw string, def *regression.Limits[K], key string) (*regression.Limits[K], error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	l, err := regression.ParseLimits[K](raw)
	if err != nil {
		return nil, &ConfigError{Key: key, Err: err}
	}
	return l, nil
}

// ParseKinds parses a comma-separated list of metric names and @groups.
// The result keeps the first occurrence of each kind in list order.
func ParseKinds[K metrics.Kind](s string) ([]K, error) {
	var kinds []K
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ks, err := metrics.ParseSelection[K](item)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, ks...)
	}
	if len(kinds) == 0 {
		return nil, errors.New("no metrics selected")
	}
	return lo.Uniq(kinds), nil
}
