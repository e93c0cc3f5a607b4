// Package config loads toolcat settings from an optional file, TOOLCAT_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/radutopala/toolcat/internal/embedding"
	"github.com/radutopala/toolcat/internal/mcpclient"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TOOLCAT"

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "TOOLCAT_CONFIG"

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "toolcat.yaml"

// Config is the full toolcat configuration.
type Config struct {
	Store      string                            `mapstructure:"store"`
	LogLevel   string                            `mapstructure:"log_level"`
	Embedding  embedding.Config                  `mapstructure:"embedding"`
	Cache      CacheConfig                       `mapstructure:"cache"`
	Sync       SyncConfig                        `mapstructure:"sync"`
	Select     SelectConfig                      `mapstructure:"select"`
	MCPServers map[string]mcpclient.ServerConfig `mapstructure:"mcp_servers"`
}

// CacheConfig configures the optional Redis embedding cache.
type CacheConfig struct {
	Addr     string        `mapstructure:"addr"` // empty disables the cache
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SyncConfig configures the synchronizer.
type SyncConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// SelectConfig configures queries.
type SelectConfig struct {
	DefaultK int `mapstructure:"default_k"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"store":              "store",
	"log-level":          "log_level",
	"embedding-provider": "embedding.provider",
	"embedding-model":    "embedding.model",
	"dimension":          "embedding.dimension",
	"concurrency":        "sync.concurrency",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store", "toolcat.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("embedding.provider", embedding.ProviderHash)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimension", embedding.DefaultDimension)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.max_retries", 3)

	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("select.default_k", 5)
}

// Load reads configuration. path may be empty, in which case TOOLCAT_CONFIG
// and then ./toolcat.yaml are tried. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := readFile(v, path); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("embedding.api_key", "TOOLCAT_EMBEDDING_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readFile loads a YAML or JSON config file. JSON files may contain comments
// and trailing commas.
func readFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		v.SetConfigType("json")
		data = jsonc.ToJSON(data)
	default:
		v.SetConfigType("yaml")
	}

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Store == "" {
		errs = append(errs, errors.New("store must not be empty"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	switch c.Embedding.Provider {
	case embedding.ProviderHash, embedding.ProviderOpenAI, embedding.ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unsupported embedding.provider %q", c.Embedding.Provider))
	}
	if c.Sync.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("sync.concurrency must be positive, got %d", c.Sync.Concurrency))
	}
	if c.Select.DefaultK <= 0 {
		errs = append(errs, fmt.Errorf("select.default_k must be positive, got %d", c.Select.DefaultK))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
