package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for luataint
type Config struct {
	// ProjectRoot is the directory modules are resolved from. Empty means
	// the directory of each scanned file.
	ProjectRoot string `yaml:"project_root" env:"LUATAINT_PROJECT_ROOT"`

	// Discovery
	Recursive     bool     `yaml:"recursive" env:"LUATAINT_RECURSIVE"`
	ExcludedPaths []string `yaml:"excluded_paths" env:"LUATAINT_EXCLUDED_PATHS"`

	// AllowLocalImports resolves requires against the importing file's directory
	AllowLocalImports bool `yaml:"allow_local_imports" env:"LUATAINT_ALLOW_LOCAL_IMPORTS"`

	// Framework selects entry-point functions: luci, all, public or none
	Framework string `yaml:"framework" env:"LUATAINT_FRAMEWORK"`

	// Detection inputs
	TriggerFile         string `yaml:"trigger_file" env:"LUATAINT_TRIGGER_FILE"`
	BlackboxMappingFile string `yaml:"blackbox_mapping_file" env:"LUATAINT_BLACKBOX_MAPPING_FILE"`
	Baseline            string `yaml:"baseline" env:"LUATAINT_BASELINE"`
	IgnoreNosec         bool   `yaml:"ignore_nosec" env:"LUATAINT_IGNORE_NOSEC"`
	Interactive         bool   `yaml:"interactive" env:"LUATAINT_INTERACTIVE"`
	MaxPaths            int    `yaml:"max_paths" env:"LUATAINT_MAX_PATHS"`

	// Parsed-tree cache size, 0 for unbounded
	MaxTrees int `yaml:"max_trees" env:"LUATAINT_MAX_TREES"`

	// Output
	Format          string `yaml:"format" env:"LUATAINT_FORMAT"`
	OutputFile      string `yaml:"output_file" env:"LUATAINT_OUTPUT_FILE"`
	OnlyUnsanitized bool   `yaml:"only_unsanitized" env:"LUATAINT_ONLY_UNSANITIZED"`

	// Logging
	Verbosity  int    `yaml:"verbosity" env:"LUATAINT_VERBOSITY"`
	LogFile    string `yaml:"log_file" env:"LUATAINT_LOG_FILE"`
	LogJSON    bool   `yaml:"log_json" env:"LUATAINT_LOG_JSON"`
	LogMaxSize int    `yaml:"log_max_size_mb" env:"LUATAINT_LOG_MAX_SIZE_MB"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Recursive:  true,
		Framework:  "luci",
		MaxPaths:   1000,
		MaxTrees:   256,
		Format:     "text",
		LogMaxSize: 10,
	}
}

// globalConfigFilePath returns the global config file path (~/.luataint/config.yaml)
func globalConfigFilePath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".luataint/config.yaml"
	}
	return filepath.Join(home, ".luataint", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.luataint/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".luataint", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.luataint/config.yaml)
// 3. Global config (~/.luataint/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{globalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LUATAINT_PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := os.Getenv("LUATAINT_RECURSIVE"); v != "" {
		cfg.Recursive = parseBool(v)
	}
	if v := os.Getenv("LUATAINT_EXCLUDED_PATHS"); v != "" {
		cfg.ExcludedPaths = splitList(v)
	}
	if v := os.Getenv("LUATAINT_ALLOW_LOCAL_IMPORTS"); v != "" {
		cfg.AllowLocalImports = parseBool(v)
	}
	if v := os.Getenv("LUATAINT_FRAMEWORK"); v != "" {
		cfg.Framework = v
	}
	if v := os.Getenv("LUATAINT_TRIGGER_FILE"); v != "" {
		cfg.TriggerFile = v
	}
	if v := os.Getenv("LUATAINT_BLACKBOX_MAPPING_FILE"); v != "" {
		cfg.BlackboxMappingFile = v
	}
	if v := os.Getenv("LUATAINT_BASELINE"); v != "" {
		cfg.Baseline = v
	}
	if v := os.Getenv("LUATAINT_IGNORE_NOSEC"); v != "" {
		cfg.IgnoreNosec = parseBool(v)
	}
	if v := os.Getenv("LUATAINT_INTERACTIVE"); v != "" {
		cfg.Interactive = parseBool(v)
	}
	if v := os.Getenv("LUATAINT_MAX_PATHS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxPaths = i
		}
	}
	if v := os.Getenv("LUATAINT_MAX_TREES"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.MaxTrees = i
		}
	}
	if v := os.Getenv("LUATAINT_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("LUATAINT_OUTPUT_FILE"); v != "" {
		cfg.OutputFile = v
	}
	if v := os.Getenv("LUATAINT_ONLY_UNSANITIZED"); v != "" {
		cfg.OnlyUnsanitized = parseBool(v)
	}
	if v := os.Getenv("LUATAINT_VERBOSITY"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.Verbosity = i
		}
	}
	if v := os.Getenv("LUATAINT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("LUATAINT_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv("LUATAINT_LOG_MAX_SIZE_MB"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.LogMaxSize = i
		}
	}
}

// expandPaths resolves a leading ~ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.ProjectRoot,
		&c.TriggerFile,
		&c.BlackboxMappingFile,
		&c.Baseline,
		&c.OutputFile,
		&c.LogFile,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch c.Framework {
	case "luci", "all", "public", "none":
		// Valid
	default:
		return fmt.Errorf("invalid framework: %s (must be 'luci', 'all', 'public' or 'none')", c.Framework)
	}

	switch c.Format {
	case "text", "json", "msgpack":
		// Valid
	default:
		return fmt.Errorf("invalid format: %s (must be 'text', 'json' or 'msgpack')", c.Format)
	}

	if c.MaxPaths <= 0 {
		return fmt.Errorf("max_paths must be positive")
	}
	if c.MaxTrees < 0 {
		return fmt.Errorf("max_trees must be non-negative")
	}
	if c.Verbosity < 0 {
		return fmt.Errorf("verbosity must be non-negative")
	}
	if c.LogMaxSize <= 0 {
		return fmt.Errorf("log_max_size_mb must be positive")
	}
	if c.Interactive && c.BlackboxMappingFile == "" {
		return fmt.Errorf("blackbox_mapping_file is required when interactive is set")
	}

	return nil
}

// parseBool accepts true/1/yes in any case
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// splitList splits a comma separated list, dropping empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseInt attempts to parse a string as int, returning -1 on failure
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return -1
	}
	return i
}
