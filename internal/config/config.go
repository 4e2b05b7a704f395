package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// StorageDriver selects the snapshot backend: sqlite3 (default),
	// mysql, redis, or memory.
	StorageDriver string `json:"storage_driver"`
	// Provider names the reply provider from the Providers map; "mock"
	// (default) answers from a canned corpus without network access.
	Provider string `json:"provider"`
	// Mock reply latency bounds in milliseconds.
	MockDelayMinMs int `json:"mock_delay_min_ms"`
	MockDelayMaxMs int `json:"mock_delay_max_ms"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

const defaultSQLiteDSN = "data/solochat.db"

// Load reads configuration from the provided path (defaults to
// config.json). A missing file is not an error: the service runs with
// defaults (sqlite storage next to the config path, mock provider).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.applyDefaults(filepath.Dir(absPath))
			return cfg, nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults(filepath.Dir(absPath))
	return &cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.BasicConfig.StorageDriver == "" {
		c.BasicConfig.StorageDriver = "sqlite3"
	}
	if c.BasicConfig.Provider == "" {
		c.BasicConfig.Provider = "mock"
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	sqlite := c.Databases["sqlite3"]
	if sqlite.DSN == "" {
		sqlite.DSN = defaultSQLiteDSN
	}
	if sqlite.DSN != ":memory:" && !filepath.IsAbs(sqlite.DSN) {
		sqlite.DSN = filepath.Join(baseDir, sqlite.DSN)
	}
	c.Databases["sqlite3"] = sqlite
}
