// Package config provides configuration management for dxnodes.
// It supports YAML or TOML configuration files, environment variables, and
// sensible defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/dxnodes/internal/backup"
	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/fulfillment"
	"github.com/klauern/dxnodes/internal/localdx"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/pkgbuild"
	"github.com/klauern/dxnodes/internal/util"
)

// envPrefix prefixes every environment override.
const envPrefix = "DXNODES_"

// Config represents the complete dxnodes configuration.
type Config struct {
	// Store configures the local exchange store
	Store StoreConfig `yaml:"store" toml:"store"`

	// Diagnostics configures what envelopes retain
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" toml:"diagnostics"`

	// Fulfillment configures the commit pipeline
	Fulfillment FulfillmentConfig `yaml:"fulfillment" toml:"fulfillment"`

	// Export configures geometry downloads
	Export ExportConfig `yaml:"export" toml:"export"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`

	// Package configures host package builds
	Package PackageConfig `yaml:"package" toml:"package"`
}

// StoreConfig holds local store settings.
type StoreConfig struct {
	// Path is the store root. Can use ~ for the home directory.
	Path string `yaml:"path" toml:"path"`
	// ConsumeUploads deletes local files once uploaded
	ConsumeUploads bool `yaml:"consume_uploads" toml:"consume_uploads"`
	// SettleAfter is the number of status checks that report processing after finish
	SettleAfter int `yaml:"settle_after" toml:"settle_after"`
}

// DiagnosticsConfig holds diagnostics settings.
type DiagnosticsConfig struct {
	// Level is the most verbose level kept (error, warning, info, debug)
	Level string `yaml:"level" toml:"level"`
}

// FulfillmentConfig holds pipeline settings.
type FulfillmentConfig struct {
	ExecutionOrder string `yaml:"execution_order" toml:"execution_order"`
	Schema         string `yaml:"schema" toml:"schema"`
	// BatchSize is the number of changes per sync batch
	BatchSize int `yaml:"batch_size" toml:"batch_size"`
	// MaxConcurrency bounds concurrent sync batches (0 = unbounded)
	MaxConcurrency int           `yaml:"max_concurrency" toml:"max_concurrency"`
	PollAttempts   int           `yaml:"poll_attempts" toml:"poll_attempts"`
	PollInterval   time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	// DefaultUnit is attached to uploaded geometry without a unit
	DefaultUnit string `yaml:"default_unit" toml:"default_unit"`
	// BackupSuffix names the copies kept while uploading
	BackupSuffix string `yaml:"backup_suffix" toml:"backup_suffix"`
}

// ExportConfig holds download settings.
type ExportConfig struct {
	// Directory is the default download directory
	Directory string `yaml:"directory" toml:"directory"`
	// Extension is .stp or .step
	Extension string `yaml:"extension" toml:"extension"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Format is the default output format (text, json, yaml)
	Format string `yaml:"format" toml:"format"`
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
	// Verbose enables verbose output
	Verbose bool `yaml:"verbose" toml:"verbose"`
}

// PackageConfig holds host package settings.
type PackageConfig struct {
	TemplateDir string `yaml:"template_dir" toml:"template_dir"`
	BuildRoot   string `yaml:"build_root" toml:"build_root"`
	TargetDir   string `yaml:"target_dir" toml:"target_dir"`
	// Configuration is the build configuration (Debug, Release)
	Configuration string `yaml:"configuration" toml:"configuration"`
	Version       string `yaml:"version" toml:"version"`
	// DeployRoots are the host package roots. Empty uses %APPDATA%/Dynamo.
	DeployRoots []string `yaml:"deploy_roots,omitempty" toml:"deploy_roots,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:           util.DxnodesStorePath(),
			ConsumeUploads: true,
			SettleAfter:    0,
		},
		Diagnostics: DiagnosticsConfig{
			Level: strings.ToLower(diagnostics.DefaultLevel.String()),
		},
		Fulfillment: FulfillmentConfig{
			ExecutionOrder: fulfillment.DefaultExecutionOrder,
			Schema:         fulfillment.DefaultSchema,
			BatchSize:      fulfillment.DefaultBatchSize,
			PollAttempts:   fulfillment.DefaultPollAttempts,
			PollInterval:   fulfillment.DefaultPollInterval,
			DefaultUnit:    string(model.DefaultUnit),
			BackupSuffix:   backup.DefaultSuffix,
		},
		Export: ExportConfig{
			Directory: util.DefaultExportDir(),
			Extension: model.ExportExtension,
		},
		Output: OutputConfig{
			Format:  "text",
			Color:   "auto",
			Verbose: false,
		},
		Package: PackageConfig{
			TemplateDir:   "extras/package-template",
			BuildRoot:     ".",
			TargetDir:     "dynamo-package",
			Configuration: "Release",
			Version:       pkgbuild.DefaultVersion,
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(util.DxnodesConfigPath(), configFileName)
}

// isTOML reports whether path names a TOML file.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg, err := LoadFromPath(FilePath())
	if err != nil {
		if os.IsNotExist(err) {
			cfg = Default()
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path. Files ending in
// .toml are parsed as TOML, anything else as YAML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path, as TOML when the
// path ends in .toml.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := c.Marshal(isTOML(path))
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Marshal renders the configuration as YAML, or TOML when asTOML is set.
func (c *Config) Marshal(asTOML bool) ([]byte, error) {
	if !asTOML {
		return yaml.Marshal(c)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern DXNODES_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	// Store settings
	if v := getenv("STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("STORE_CONSUME_UPLOADS"); v != "" {
		c.Store.ConsumeUploads = parseBool(v)
	}
	setInt(&c.Store.SettleAfter, "STORE_SETTLE_AFTER")

	// Diagnostics settings
	if v := getenv("DIAGNOSTICS_LEVEL"); v != "" {
		c.Diagnostics.Level = v
	}

	// Fulfillment settings
	setInt(&c.Fulfillment.BatchSize, "FULFILLMENT_BATCH_SIZE")
	setInt(&c.Fulfillment.MaxConcurrency, "FULFILLMENT_MAX_CONCURRENCY")
	setInt(&c.Fulfillment.PollAttempts, "FULFILLMENT_POLL_ATTEMPTS")
	if v := getenv("FULFILLMENT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Fulfillment.PollInterval = d
		}
	}
	if v := getenv("FULFILLMENT_DEFAULT_UNIT"); v != "" {
		c.Fulfillment.DefaultUnit = v
	}

	// Export settings
	if v := getenv("EXPORT_DIRECTORY"); v != "" {
		c.Export.Directory = v
	}
	if v := getenv("EXPORT_EXTENSION"); v != "" {
		c.Export.Extension = v
	}

	// Output settings
	if v := getenv("OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := getenv("OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := getenv("OUTPUT_VERBOSE"); v != "" {
		c.Output.Verbose = parseBool(v)
	}

	// Package settings
	if v := getenv("PACKAGE_VERSION"); v != "" {
		c.Package.Version = v
	}
	if v := getenv("PACKAGE_DEPLOY_ROOTS"); v != "" {
		c.Package.DeployRoots = splitPaths(v)
	}
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

// setInt overrides dst with a non-negative integer from the environment.
func setInt(dst *int, key string) {
	v := getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		*dst = n
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitPaths splits an OS path list into individual paths.
// Empty segments are filtered out.
func splitPaths(s string) []string {
	parts := filepath.SplitList(s)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Validate checks values that are parsed later.
func (c *Config) Validate() error {
	if _, err := diagnostics.ParseLevel(c.Diagnostics.Level); err != nil {
		return err
	}
	if _, err := model.ParseUnit(c.Fulfillment.DefaultUnit); err != nil {
		return err
	}
	switch strings.ToLower(c.Export.Extension) {
	case ".stp", ".step":
	default:
		return fmt.Errorf("invalid export extension %q (valid: .stp, .step)", c.Export.Extension)
	}
	switch c.Output.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("invalid output format %q (valid: text, json, yaml)", c.Output.Format)
	}
	return nil
}

// DiagnosticsLevel returns the configured level, or the default when invalid.
func (c *Config) DiagnosticsLevel() diagnostics.Level {
	level, err := diagnostics.ParseLevel(c.Diagnostics.Level)
	if err != nil {
		return diagnostics.DefaultLevel
	}
	return level
}

// FulfillmentOptions returns coordinator options from the config.
func (c *Config) FulfillmentOptions() fulfillment.Options {
	unit, err := model.ParseUnit(c.Fulfillment.DefaultUnit)
	if err != nil {
		unit = model.DefaultUnit
	}
	return fulfillment.Options{
		ExecutionOrder: c.Fulfillment.ExecutionOrder,
		Schema:         c.Fulfillment.Schema,
		BatchSize:      c.Fulfillment.BatchSize,
		MaxConcurrency: c.Fulfillment.MaxConcurrency,
		PollAttempts:   c.Fulfillment.PollAttempts,
		PollInterval:   c.Fulfillment.PollInterval,
		LengthUnit:     unit,
		Backup:         backup.Options{Suffix: c.Fulfillment.BackupSuffix},
	}
}

// StorePath returns the expanded store root.
func (c *Config) StorePath() string {
	if c.Store.Path == "" {
		return util.DxnodesStorePath()
	}
	return util.ExpandPath(c.Store.Path, "")
}

// StoreOptions returns local store options from the config.
func (c *Config) StoreOptions() localdx.Options {
	return localdx.Options{
		ConsumeUploads: c.Store.ConsumeUploads,
		SettleAfter:    c.Store.SettleAfter,
	}
}

// ExportDir returns the expanded default download directory.
func (c *Config) ExportDir() string {
	if c.Export.Directory == "" {
		return util.DefaultExportDir()
	}
	return util.ExpandPath(c.Export.Directory, "")
}

// PackageOptions returns build options for a full host version, resolving
// relative package paths against baseDir.
func (c *Config) PackageOptions(hostVersion, baseDir string) pkgbuild.Options {
	buildRoot := util.ExpandPath(c.Package.BuildRoot, baseDir)
	return pkgbuild.Options{
		TemplateDir:    util.ExpandPath(c.Package.TemplateDir, baseDir),
		BinariesDir:    pkgbuild.BinariesPath(buildRoot, c.Package.Configuration, hostVersion),
		TargetDir:      util.ExpandPath(c.Package.TargetDir, baseDir),
		Version:        c.Package.Version,
		InstallVersion: pkgbuild.InstallVersion(hostVersion),
	}
}

// DeployRoots returns the configured deploy roots, or the host defaults.
func (c *Config) DeployRoots() []string {
	if len(c.Package.DeployRoots) == 0 {
		return pkgbuild.DefaultRoots()
	}
	roots := make([]string, 0, len(c.Package.DeployRoots))
	for _, r := range c.Package.DeployRoots {
		roots = append(roots, util.ExpandPath(r, ""))
	}
	return roots
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
