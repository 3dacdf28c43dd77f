// Package config provides configuration loading and structs for the podsearch server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Instance   InstanceConfig   `yaml:"instance"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Languages  LanguagesConfig  `yaml:"languages"`
	Vectorizer VectorizerConfig `yaml:"vectorizer"`
	Search     SearchConfig     `yaml:"search"`
	Federation FederationConfig `yaml:"federation"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Watch      WatchConfig      `yaml:"watch"`
}

// InstanceConfig describes this instance to peers.
type InstanceConfig struct {
	SiteURL      string `yaml:"site_url"`
	SiteName     string `yaml:"sitename"`
	SiteTopic    string `yaml:"site_topic"`
	Organization string `yaml:"organization"`
	UserAgent    string `yaml:"user_agent"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the catalog database and pod files.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	PodsDir      string `yaml:"pods_dir"`
}

// LanguagesConfig lists installed language resources.
type LanguagesConfig struct {
	Dir       string   `yaml:"dir"`
	Installed []string `yaml:"installed"`
	Default   string   `yaml:"default"`
}

// VectorizerConfig holds document vector settings.
type VectorizerConfig struct {
	LogprobPower   float64 `yaml:"logprob_power"`
	TopWords       int     `yaml:"top_words"`
	MaxNeighbors   int     `yaml:"max_neighbors"`
	QueryCacheSize int     `yaml:"query_cache_size"`
}

// SearchConfig holds local scoring and ranking settings.
type SearchConfig struct {
	MaxPods         int     `yaml:"max_pods"`
	MinDocScore     float64 `yaml:"min_doc_score"`
	ScoreFloor      float64 `yaml:"score_floor"`
	MaxResults      int     `yaml:"max_results"`
	MaxPerHost      int     `yaml:"max_per_host"`
	LexicalBonus    float64 `yaml:"lexical_bonus"`
	ExpansionWeight float64 `yaml:"expansion_weight"`
	PodWorkers      int     `yaml:"pod_workers"`
	SnippetWords    int     `yaml:"snippet_words"`
}

// FederationConfig holds peer discovery and remote query settings.
type FederationConfig struct {
	Enabled         bool          `yaml:"enabled"`
	PeersFile       string        `yaml:"peers_file"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxPeers        int           `yaml:"max_peers"`
	ExpansionLength int           `yaml:"expansion_length"`
	Workers         int           `yaml:"workers"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// IndexerConfig holds fetch and batch indexing settings.
type IndexerConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Workers      int           `yaml:"workers"`
	SnippetWords int           `yaml:"snippet_words"`
}

// WatchConfig holds inbox directory settings.
type WatchConfig struct {
	Directories  []string `yaml:"directories"`
	Extensions   []string `yaml:"extensions"`
	Contributor  string   `yaml:"contributor"`
	DefaultTheme string   `yaml:"default_theme"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.PodsDir = expandPath(cfg.Storage.PodsDir, configDir)
	cfg.Languages.Dir = expandPath(cfg.Languages.Dir, configDir)
	if cfg.Federation.PeersFile != "" {
		cfg.Federation.PeersFile = expandPath(cfg.Federation.PeersFile, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate reports settings that defaults cannot repair.
func (c *Config) Validate() error {
	found := false
	for _, l := range c.Languages.Installed {
		if l == c.Languages.Default {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default language %q is not in installed languages %v", c.Languages.Default, c.Languages.Installed)
	}
	if c.Search.ExpansionWeight < 0 {
		return fmt.Errorf("search.expansion_weight must not be negative")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
