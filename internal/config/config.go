package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// CurrentVersion is the configuration schema version written by Init/Save.
const CurrentVersion = "1.0"

// Config is the sitebuilder configuration file (sitebuilder.yaml).
type Config struct {
	Version    string           `yaml:"version"`
	Content    ContentConfig    `yaml:"content"`
	Build      BuildConfig      `yaml:"build"`
	Sync       SyncConfig       `yaml:"sync"`
	Site       SiteConfig       `yaml:"site"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ContentConfig locates the user content and the cache used to relocate it.
type ContentConfig struct {
	Directory string `yaml:"directory"` // Content directory (default "content")
	CacheDir  string `yaml:"cache_dir"` // Dedicated cache directory (default ".sitebuilder-cache")
}

// MirrorDir returns the single-slot cache mirror path.
func (c ContentConfig) MirrorDir() string {
	return filepath.Join(c.CacheDir, "content-cache")
}

// BuildDir returns where the compiled bundle and its source map live.
func (c ContentConfig) BuildDir() string {
	return filepath.Join(c.CacheDir, "build")
}

// BuildConfig controls compilation and the watch/serve loop.
type BuildConfig struct {
	Output     string   `yaml:"output"`      // Emitted site directory (default "public")
	Port       int      `yaml:"port"`        // Preview port for --serve
	LiveReload bool     `yaml:"live_reload"` // Serve /livereload SSE during --serve
	Ignore     []string `yaml:"ignore"`      // Extra glob patterns ignored by the watcher
}

// SyncConfig controls the git sync session.
type SyncConfig struct {
	Remote       string `yaml:"remote"`        // Remote for pull/push (default "origin")
	Branch       string `yaml:"branch"`        // Branch pulled from the remote (default "main")
	CommitPrefix string `yaml:"commit_prefix"` // Auto-generated commit message prefix
	Locale       string `yaml:"locale"`        // BCP 47 tag for the commit timestamp (default "en-US")
	Schedule     string `yaml:"schedule"`      // Default interval for `sync --every`
	UpstreamName string `yaml:"upstream_name"` // Remote used by `update` (default "upstream")
	UpstreamURL  string `yaml:"upstream_url"`  // URL registered for the upstream remote
	UpstreamRef  string `yaml:"upstream_ref"`  // Branch pulled by `update`
}

// SiteConfig holds site-level settings consumed by the compile pipeline.
type SiteConfig struct {
	Title          string         `yaml:"title"`
	BaseURL        string         `yaml:"base_url"`
	LinkResolution LinkResolution `yaml:"link_resolution"`
}

// MonitoringConfig configures metrics exposure during --serve.
type MonitoringConfig struct {
	Metrics MonitoringMetrics `yaml:"metrics"`
}

// MonitoringMetrics represents metrics configuration.
type MonitoringMetrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads the configuration file. A missing file is not an error: the
// returned configuration then carries only defaults.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	var cfg Config
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg.Version = CurrentVersion
	case err != nil:
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			Fatal().WithContext("path", configPath).Build()
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config file").
				Fatal().WithContext("path", configPath).Build()
		}
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to configPath as YAML.
func Save(configPath string, cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write config file").
			Fatal().WithContext("path", configPath).Build()
	}
	return nil
}

// Default returns a configuration populated only with defaults.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	_ = applyDefaults(cfg)
	return cfg
}
