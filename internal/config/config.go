// Package config loads the archidx build configuration from YAML, with
// environment variable expansion and optional .env support.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full build configuration.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Archive ArchiveConfig `yaml:"archive"`
	Build   BuildConfig   `yaml:"build"`
	State   StateConfig   `yaml:"state"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SiteConfig names the site the generated pages belong to.
type SiteConfig struct {
	Title   string `yaml:"title"`
	BaseURL string `yaml:"base_url"` // file download prefix, no trailing slash
}

// ArchiveConfig locates the archive tree and its inputs and outputs.
type ArchiveConfig struct {
	RootName      string `yaml:"root_name"`      // top-level directory name, e.g. "if-archive"
	Tree          string `yaml:"tree"`           // directory containing the root
	IndexDocument string `yaml:"index_document"` // composed description document
	Lib           string `yaml:"lib"`            // templates and auxiliary lists
	Dest          string `yaml:"dest"`           // directory receiving generated pages
}

// BuildConfig holds knobs for a single build run.
type BuildConfig struct {
	Workers             int      `yaml:"workers"`
	ExcludeUndocumented bool     `yaml:"exclude_undocumented"`
	Reserved            []string `yaml:"reserved,omitempty"` // subtree names never walked
}

// StateConfig names the persisted cross-run state. Paths are resolved
// against Archive.Dest unless absolute.
type StateConfig struct {
	Cache  string `yaml:"cache"`
	Marker string `yaml:"marker"`
	Lock   string `yaml:"lock"`
}

// NotifyConfig configures the fire-and-forget outbound calls made after a
// successful build.
type NotifyConfig struct {
	SearchReindexURL string   `yaml:"search_reindex_url,omitempty"`
	SearchReindexKey string   `yaml:"search_reindex_key,omitempty"`
	PurgeURL         string   `yaml:"purge_url,omitempty"`
	PurgeKey         string   `yaml:"purge_key,omitempty"`
	PurgeEmail       string   `yaml:"purge_email,omitempty"`
	BaseURLs         []string `yaml:"base_urls,omitempty"` // URL prefixes to purge per path
}

// MetricsConfig configures optional metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"` // write a .prom textfile here after each run
}

// Load reads the configuration from configPath, expanding ${VAR} references
// from the environment. A .env or .env.local file in the working directory
// is loaded first if present; existing variables are not overridden.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles loads the first .env file found. Missing files are fine.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
			return
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Site.Title == "" {
		c.Site.Title = "The Interactive Fiction Archive"
	}
	c.Site.BaseURL = strings.TrimRight(c.Site.BaseURL, "/")
	if c.Archive.RootName == "" {
		c.Archive.RootName = "if-archive"
	}
	if c.Build.Workers <= 0 {
		c.Build.Workers = 4
	}
	if c.State.Cache == "" {
		c.State.Cache = "checksum-cache.db"
	}
	if c.State.Marker == "" {
		c.State.Marker = "last-build"
	}
	if c.State.Lock == "" {
		c.State.Lock = "build.lock"
	}
}

func (c *Config) validate() error {
	if c.Archive.Dest == "" {
		return fmt.Errorf("config: archive.dest is required")
	}
	if c.Archive.Lib == "" {
		return fmt.Errorf("config: archive.lib is required")
	}
	return nil
}

// CachePath returns the checksum cache path, resolved against Dest.
func (c *Config) CachePath() string { return c.statePath(c.State.Cache) }

// MarkerPath returns the build marker path, resolved against Dest.
func (c *Config) MarkerPath() string { return c.statePath(c.State.Marker) }

// LockPath returns the lock file path, resolved against Dest.
func (c *Config) LockPath() string { return c.statePath(c.State.Lock) }

func (c *Config) statePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Archive.Dest, name)
}
