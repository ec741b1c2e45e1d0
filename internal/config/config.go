package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type ChainConfig struct {
	Name     string   `yaml:"name"`
	ChainID  int      `yaml:"chain_id"`
	RPCURLs  []string `yaml:"rpc_urls"`
	Explorer Explorer `yaml:"explorer"`
}

type Explorer struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type AuditSettings struct {
	DownloadDir    string `yaml:"download_dir"`
	ReportDir      string `yaml:"report_dir"`
	LogWindowSize  uint64 `yaml:"log_window_size"`
	LookbackBlocks uint64 `yaml:"lookback_blocks"`
}

type DatabaseConfig struct {
	DSN        string `yaml:"dsn"`         // Postgres DSN; empty means SQLite fallback
	SQLitePath string `yaml:"sqlite_path"` // defaults to data/argus.db
}

type AppConfig struct {
	Chains   map[string]ChainConfig `yaml:"chains"`
	Audit    AuditSettings          `yaml:"audit"`
	Database DatabaseConfig         `yaml:"database"`
	Proxy    string                 `yaml:"proxy"`
}

var loadOnce sync.Once
var loadedConfig *AppConfig
var loadedErr error

// LoadConfig loads settings.yaml once per process.
func LoadConfig() (*AppConfig, error) {
	loadOnce.Do(func() {
		configPath := findConfigFile()
		if configPath == "" {
			loadedErr = fmt.Errorf("The configuration file settings.yaml was not found.")
			return
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			loadedErr = fmt.Errorf("Failed to read configuration file: %w", err)
			return
		}

		var config AppConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			loadedErr = fmt.Errorf("Failed to parse configuration file: %w", err)
			return
		}

		applyDefaults(&config)
		loadedConfig = &config
	})

	if loadedErr != nil {
		return nil, loadedErr
	}
	return loadedConfig, nil
}

func applyDefaults(c *AppConfig) {
	if c.Audit.DownloadDir == "" {
		c.Audit.DownloadDir = "downloads"
	}
	if c.Audit.ReportDir == "" {
		c.Audit.ReportDir = "reports"
	}
	if c.Audit.LogWindowSize == 0 {
		c.Audit.LogWindowSize = 50000
	}
	if c.Audit.LookbackBlocks == 0 {
		c.Audit.LookbackBlocks = 200000
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = filepath.Join("data", "argus.db")
	}
}

func findConfigFile() string {
	possiblePaths := []string{
		"config/settings.yaml",
		"settings.yaml",
		"../config/settings.yaml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func (c *AppConfig) GetChainConfig(chainName string) (*ChainConfig, error) {
	chain, exists := c.Chains[chainName]
	if !exists {
		return nil, fmt.Errorf("Unsupported chain: %s", chainName)
	}
	return &chain, nil
}
