package config

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// ContentDefaultApplier handles content location defaults.
type ContentDefaultApplier struct{}

func (ContentDefaultApplier) Domain() string { return "content" }

func (ContentDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Content.Directory == "" {
		cfg.Content.Directory = "content"
	}
	if cfg.Content.CacheDir == "" {
		cfg.Content.CacheDir = ".sitebuilder-cache"
	}
	return nil
}

// BuildDefaultApplier handles build and preview defaults.
type BuildDefaultApplier struct{}

func (BuildDefaultApplier) Domain() string { return "build" }

func (BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Build.Output == "" {
		cfg.Build.Output = "public"
	}
	if cfg.Build.Port == 0 {
		cfg.Build.Port = 8080
	}
	return nil
}

// SyncDefaultApplier handles git sync defaults.
type SyncDefaultApplier struct{}

func (SyncDefaultApplier) Domain() string { return "sync" }

func (SyncDefaultApplier) ApplyDefaults(cfg *Config) error {
	s := &cfg.Sync
	if s.Remote == "" {
		s.Remote = "origin"
	}
	if s.Branch == "" {
		s.Branch = "main"
	}
	if s.CommitPrefix == "" {
		s.CommitPrefix = "Site sync"
	}
	if s.Locale == "" {
		s.Locale = "en-US"
	}
	if s.UpstreamName == "" {
		s.UpstreamName = "upstream"
	}
	if s.UpstreamRef == "" {
		s.UpstreamRef = s.Branch
	}
	return nil
}

// SiteDefaultApplier handles site defaults.
type SiteDefaultApplier struct{}

func (SiteDefaultApplier) Domain() string { return "site" }

func (SiteDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Site.Title == "" {
		cfg.Site.Title = "My Site"
	}
	if cfg.Site.LinkResolution == "" {
		cfg.Site.LinkResolution = LinkShortest
	}
	return nil
}

// ObservabilityDefaultApplier handles logging and metrics defaults.
type ObservabilityDefaultApplier struct{}

func (ObservabilityDefaultApplier) Domain() string { return "observability" }

func (ObservabilityDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	if cfg.Monitoring.Metrics.Path == "" {
		cfg.Monitoring.Metrics.Path = "/metrics"
	}
	return nil
}

var defaultAppliers = []DefaultApplier{
	ContentDefaultApplier{},
	BuildDefaultApplier{},
	SyncDefaultApplier{},
	SiteDefaultApplier{},
	ObservabilityDefaultApplier{},
}

func applyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}
