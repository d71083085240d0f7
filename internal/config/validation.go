package config

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// ValidateConfig checks the configuration after defaults have been applied.
func ValidateConfig(cfg *Config) error {
	if cfg.Version != CurrentVersion {
		return ferrors.ConfigError("unsupported configuration version").
			WithContext("version", cfg.Version).
			WithContext("expected", CurrentVersion).
			Build()
	}
	if err := validateContent(cfg.Content); err != nil {
		return err
	}
	if err := validateBuild(cfg); err != nil {
		return err
	}
	return validateSync(cfg.Sync)
}

func validateContent(c ContentConfig) error {
	content := filepath.Clean(c.Directory)
	cache := filepath.Clean(c.CacheDir)
	if content == "." || content == "/" {
		return ferrors.ConfigError("content.directory must name a dedicated directory").
			WithContext("directory", c.Directory).Build()
	}
	if content == cache || isWithin(cache, content) || isWithin(content, cache) {
		return ferrors.ConfigError("content.directory and content.cache_dir must not overlap").
			WithContext("directory", c.Directory).
			WithContext("cache_dir", c.CacheDir).
			Build()
	}
	return nil
}

func validateBuild(cfg *Config) error {
	if cfg.Build.Port < 0 || cfg.Build.Port > 65535 {
		return ferrors.ConfigError("build.port out of range").WithContext("port", cfg.Build.Port).Build()
	}
	for _, pattern := range cfg.Build.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid build.ignore pattern").
				Fatal().WithContext("pattern", pattern).Build()
		}
	}
	if _, err := ParseLinkResolution(string(cfg.Site.LinkResolution)); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid site.link_resolution").Fatal().Build()
	}
	return nil
}

func validateSync(s SyncConfig) error {
	if strings.TrimSpace(s.Remote) == "" || strings.TrimSpace(s.Branch) == "" {
		return ferrors.ConfigError("sync.remote and sync.branch are required").Build()
	}
	if _, err := language.Parse(s.Locale); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid sync.locale").
			Fatal().WithContext("locale", s.Locale).Build()
	}
	if s.Schedule != "" {
		d, err := time.ParseDuration(s.Schedule)
		if err != nil || d <= 0 {
			return ferrors.ConfigError("sync.schedule must be a positive duration").
				WithContext("schedule", s.Schedule).Build()
		}
	}
	return nil
}

// isWithin reports whether path lies strictly inside dir.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
