// Package config loads the agent's YAML configuration with defaults applied
// for anything the file omits.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Graph     GraphConfig     `yaml:"graph"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Router    RouterConfig    `yaml:"router"`
	Search    SearchConfig    `yaml:"search"`
	Collab    CollabConfig    `yaml:"collab"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type GraphConfig struct {
	// Backend selects the repository: "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the SQLite database file when Backend is "sqlite".
	Path string `yaml:"path"`
}

type EmbeddingConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Token     string        `yaml:"token"`
	Model     string        `yaml:"model"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type RouterConfig struct {
	CentroidWeight float64       `yaml:"centroid_weight"`
	LexicalWeight  float64       `yaml:"lexical_weight"`
	DomainTTL      time.Duration `yaml:"domain_ttl"`
	RouteCacheTTL  time.Duration `yaml:"route_cache_ttl"`
	TopN           int           `yaml:"top_n"`
}

type SearchConfig struct {
	StageTimeout        time.Duration `yaml:"stage_timeout"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	SeedCount           int           `yaml:"seed_count"`
	RRFK                int           `yaml:"rrf_k"`
	DiversityEnabled    bool          `yaml:"diversity_enabled"`
	DefaultLimit        int           `yaml:"default_limit"`
}

type CollabConfig struct {
	Enabled         bool            `yaml:"enabled"`
	Decider         string          `yaml:"decider"` // "heuristic" or "anthropic"
	DecisionTimeout time.Duration   `yaml:"decision_timeout"`
	PeerTimeout     time.Duration   `yaml:"peer_timeout"`
	MaxTargets      int             `yaml:"max_targets"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Peers           []PeerConfig    `yaml:"peers"`
}

type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type PeerConfig struct {
	Domain  string        `yaml:"domain"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Graph: GraphConfig{
			Backend: "memory",
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "http://localhost:11434/v1",
			Model:     "nomic-embed-text",
			CacheSize: 2048,
			CacheTTL:  10 * time.Minute,
		},
		Router: RouterConfig{
			CentroidWeight: 0.7,
			LexicalWeight:  0.3,
			DomainTTL:      5 * time.Minute,
			RouteCacheTTL:  time.Minute,
			TopN:           3,
		},
		Search: SearchConfig{
			StageTimeout:        2 * time.Second,
			SimilarityThreshold: 0.65,
			SeedCount:           3,
			RRFK:                60,
			DefaultLimit:        10,
		},
		Collab: CollabConfig{
			Enabled:         true,
			Decider:         "heuristic",
			DecisionTimeout: time.Second,
			PeerTimeout:     3 * time.Second,
			MaxTargets:      2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults backfills zero values a partial file left behind.
func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Graph.Backend == "" {
		c.Graph.Backend = def.Graph.Backend
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = def.Embedding.CacheSize
	}
	if c.Embedding.CacheTTL <= 0 {
		c.Embedding.CacheTTL = def.Embedding.CacheTTL
	}
	if c.Router.TopN <= 0 {
		c.Router.TopN = def.Router.TopN
	}
	if c.Search.StageTimeout <= 0 {
		c.Search.StageTimeout = def.Search.StageTimeout
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = def.Search.DefaultLimit
	}
	if c.Search.RRFK <= 0 {
		c.Search.RRFK = def.Search.RRFK
	}
	if c.Collab.DecisionTimeout <= 0 {
		c.Collab.DecisionTimeout = def.Collab.DecisionTimeout
	}
	if c.Collab.PeerTimeout <= 0 {
		c.Collab.PeerTimeout = def.Collab.PeerTimeout
	}
	if c.Collab.MaxTargets <= 0 {
		c.Collab.MaxTargets = def.Collab.MaxTargets
	}
	if c.Collab.Decider == "" {
		c.Collab.Decider = def.Collab.Decider
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case "memory":
	case "sqlite":
		if c.Graph.Path == "" {
			return fmt.Errorf("graph.path required for sqlite backend")
		}
	default:
		return fmt.Errorf("unknown graph backend %q", c.Graph.Backend)
	}

	switch c.Collab.Decider {
	case "heuristic":
	case "anthropic":
		if c.Collab.Enabled && c.Collab.Anthropic.APIKey == "" {
			return fmt.Errorf("collab.anthropic.api_key required for anthropic decider")
		}
	default:
		return fmt.Errorf("unknown collab decider %q", c.Collab.Decider)
	}

	for _, p := range c.Collab.Peers {
		if p.Domain == "" || p.URL == "" {
			return fmt.Errorf("peer entries require domain and url")
		}
	}
	return nil
}
