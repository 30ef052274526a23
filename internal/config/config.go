// Package config loads and validates feedindex configuration.
//
// Configuration comes from a YAML file with defaults applied for anything
// not set. An empty Index.Dir selects an in-memory index, which is what
// the tests use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete feedindex configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Index   IndexConfig  `yaml:"index" json:"index"`
	Feeds   FeedsConfig  `yaml:"feeds" json:"feeds"`
	Server  ServerConfig `yaml:"server" json:"server"`
	Tuning  TuningConfig `yaml:"tuning" json:"tuning"`
}

// IndexConfig configures the on-disk index and its analyzers.
type IndexConfig struct {
	// Dir is the index directory. Empty means an in-memory index.
	Dir string `yaml:"dir" json:"dir"`

	// DefaultLanguage is the language used when an item carries no
	// culture hint (e.g., "en").
	DefaultLanguage string `yaml:"default_language" json:"default_language"`

	// Languages lists the languages indexed with language-specific
	// analyzers. Items in other languages fall back to DefaultLanguage.
	Languages []string `yaml:"languages" json:"languages"`

	// CatalogPath is the SQLite catalog of indexed feeds.
	// Empty disables the catalog.
	CatalogPath string `yaml:"catalog_path" json:"catalog_path"`
}

// FeedsConfig configures the subscription list watcher.
type FeedsConfig struct {
	// ListPath is the JSON subscription file watched for feed removals.
	// Empty disables the watcher.
	ListPath string `yaml:"list_path" json:"list_path"`

	// WatchDebounce coalesces rapid rewrites of the subscription file
	// (e.g., "500ms").
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures logging for the long-running commands.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// TuningConfig carries the indexing gateway's tuning knobs.
// The defaults are sized for feed workloads: a feed with ~50 items is
// roughly 100 KB of text, so a 50-document batch keeps one feed refresh
// inside a single segment flush.
type TuningConfig struct {
	// MergeFactor is the segment count that triggers a background merge.
	MergeFactor int `yaml:"merge_factor" json:"merge_factor"`

	// DocsPerSegment is the number of buffered documents per batch flush.
	DocsPerSegment int `yaml:"docs_per_segment" json:"docs_per_segment"`

	// RetryDelay is how long the worker backs off when the index
	// directory is locked by another process (e.g., "1s").
	RetryDelay string `yaml:"retry_delay" json:"retry_delay"`

	// PacingSleep is the worker's pause between drain batches, which
	// coalesces bursts from feed-refresh waves (e.g., "5s").
	PacingSleep string `yaml:"pacing_sleep" json:"pacing_sleep"`
}

// Default tuning values. These must stay in sync with the documented
// gateway behavior; tests pin them.
const (
	DefaultMergeFactor    = 20
	DefaultDocsPerSegment = 50
	DefaultRetryDelay     = 1000 * time.Millisecond
	DefaultPacingSleep    = 5000 * time.Millisecond
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Dir:             "",
			DefaultLanguage: "en",
			Languages:       []string{"en", "de", "es", "fr", "it", "pt"},
		},
		Feeds: FeedsConfig{
			WatchDebounce: "500ms",
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
		Tuning: TuningConfig{
			MergeFactor:    DefaultMergeFactor,
			DocsPerSegment: DefaultDocsPerSegment,
			RetryDelay:     "1s",
			PacingSleep:    "5s",
		},
	}
}

// Load reads configuration from path, applying defaults for missing fields.
// A missing file returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.Index.Dir = expandHome(cfg.Index.Dir)
	cfg.Index.CatalogPath = expandHome(cfg.Index.CatalogPath)
	cfg.Feeds.ListPath = expandHome(cfg.Feeds.ListPath)
	cfg.Server.LogFile = expandHome(cfg.Server.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandHome resolves a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Index.DefaultLanguage == "" {
		return fmt.Errorf("index.default_language must not be empty")
	}
	if c.Tuning.MergeFactor < 2 {
		return fmt.Errorf("tuning.merge_factor must be at least 2, got %d", c.Tuning.MergeFactor)
	}
	if c.Tuning.DocsPerSegment < 1 {
		return fmt.Errorf("tuning.docs_per_segment must be at least 1, got %d", c.Tuning.DocsPerSegment)
	}
	for _, field := range []struct{ name, value string }{
		{"tuning.retry_delay", c.Tuning.RetryDelay},
		{"tuning.pacing_sleep", c.Tuning.PacingSleep},
		{"feeds.watch_debounce", c.Feeds.WatchDebounce},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s is not a valid duration: %q", field.name, field.value)
		}
	}
	return nil
}

// InMemory reports whether the index is backed by memory only.
func (c *Config) InMemory() bool {
	return c.Index.Dir == ""
}

// IndexDir returns the resolved index directory. Empty for in-memory.
func (c *Config) IndexDir() string {
	return c.Index.Dir
}

// Language normalizes a culture tag ("en-US", "pt_BR") to a primary
// language subtag and returns it if it is configured, falling back to
// DefaultLanguage otherwise.
func (c *Config) Language(culture string) string {
	lang := primarySubtag(culture)
	if lang == "" {
		return c.Index.DefaultLanguage
	}
	for _, l := range c.Index.Languages {
		if l == lang {
			return lang
		}
	}
	return c.Index.DefaultLanguage
}

// RetryDelayDuration returns the parsed retry delay.
func (c *Config) RetryDelayDuration() time.Duration {
	return parseDurationOr(c.Tuning.RetryDelay, DefaultRetryDelay)
}

// PacingSleepDuration returns the parsed pacing sleep.
func (c *Config) PacingSleepDuration() time.Duration {
	return parseDurationOr(c.Tuning.PacingSleep, DefaultPacingSleep)
}

// WatchDebounceDuration returns the parsed watcher debounce window.
func (c *Config) WatchDebounceDuration() time.Duration {
	return parseDurationOr(c.Feeds.WatchDebounce, 500*time.Millisecond)
}

// primarySubtag extracts the primary language subtag from a culture tag.
func primarySubtag(culture string) string {
	culture = strings.ToLower(strings.TrimSpace(culture))
	if culture == "" {
		return ""
	}
	if i := strings.IndexAny(culture, "-_"); i >= 0 {
		culture = culture[:i]
	}
	return culture
}

// parseDurationOr parses a duration string, returning def on failure.
func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
