package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvOutput        = "GOSEC_AUDIT_OUTPUT"
	EnvWorkers       = "GOSEC_AUDIT_WORKERS"
	EnvTimeout       = "GOSEC_AUDIT_TIMEOUT"
	EnvUnknownBlocks = "GOSEC_AUDIT_UNKNOWN_BLOCKS"
	EnvGoogleAPIKey  = "GOOGLE_API_KEY"
)

const (
	DefaultOutputPath   = "audit_report.json"
	DefaultCheckTimeout = 5 * time.Second
	DefaultProvider     = "gemini"
	DefaultModel        = "gemini-1.5-flash"
)

type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

type AdvisorConfig struct {
	Provider  string                    `yaml:"provider"`
	Model     string                    `yaml:"model"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type Config struct {
	OutputPath    string        `yaml:"output_path"`
	Workers       int           `yaml:"workers"`
	CheckTimeout  time.Duration `yaml:"check_timeout"`
	UnknownBlocks bool          `yaml:"unknown_blocks"`
	Color         bool          `yaml:"color"`
	History       HistoryConfig `yaml:"history"`
	Advisor       AdvisorConfig `yaml:"advisor"`

	path string
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		OutputPath:   DefaultOutputPath,
		Workers:      1,
		CheckTimeout: DefaultCheckTimeout,
		Color:        true,
		History:      HistoryConfig{Enabled: true},
		Advisor: AdvisorConfig{
			Provider:  DefaultProvider,
			Model:     DefaultModel,
			Providers: make(map[string]ProviderConfig),
		},
	}
}

// GetConfigPath returns ~/.gosec-audit/config.yaml, creating the directory.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".gosec-audit")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Load reads the configuration at path, or at the default location when path is
// empty. A missing file yields the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Advisor.Providers == nil {
		cfg.Advisor.Providers = make(map[string]ProviderConfig)
	}
	return cfg, nil
}

// LoadConfig loads the configuration from the default location.
func LoadConfig() (*Config, error) {
	return Load("")
}

// Path is where Save writes the configuration.
func (c *Config) Path() string {
	return c.path
}

// SaveConfig writes cfg back to the file it was loaded from.
func SaveConfig(cfg *Config) error {
	path := cfg.path
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// 0600: the file holds API keys.
	return os.WriteFile(path, data, 0o600)
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays environment overrides. It is applied to the effective
// configuration of a run and never saved.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvOutput); ok && strings.TrimSpace(v) != "" {
		c.OutputPath = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.CheckTimeout = d
	}
	if v, ok := lookup(EnvUnknownBlocks); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUnknownBlocks, err)
		}
		c.UnknownBlocks = b
	}
	return nil
}

// Validate rejects values the audit cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.CheckTimeout <= 0 {
		return fmt.Errorf("check_timeout must be positive, got %s", c.CheckTimeout)
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return errors.New("output_path must not be empty")
	}
	return nil
}

// HistoryPath returns the configured history database, or "" for the default.
func (c *Config) HistoryPath() string {
	return c.History.Path
}

func (c *Config) SetAPIKey(provider, key string) {
	if c.Advisor.Providers == nil {
		c.Advisor.Providers = make(map[string]ProviderConfig)
	}
	p := c.Advisor.Providers[provider]
	p.APIKey = key
	c.Advisor.Providers[provider] = p
}

// GetAPIKey returns the key for provider. GOOGLE_API_KEY takes precedence for gemini.
func (c *Config) GetAPIKey(provider string) string {
	if provider == DefaultProvider {
		if v := strings.TrimSpace(os.Getenv(EnvGoogleAPIKey)); v != "" {
			return v
		}
	}
	return c.Advisor.Providers[provider].APIKey
}
