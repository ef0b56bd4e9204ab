package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port    int `yaml:"port"`
	MCPPort int `yaml:"mcp_port"`
	// AuthToken, when set, requires a matching bearer token on every
	// API request. Empty disables authentication.
	AuthToken string `yaml:"auth_token"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    8000,
			MCPPort: 8001,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "flowrag-data"
		}
	}
	return filepath.Join(dir, "flowrag")
}

func defaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "flowrag", "config.yaml")
}

// Load reads configuration in ascending precedence: built-in defaults,
// the YAML config file, then FLOWRAG_* environment variables. A .env
// file in the working directory is loaded into the environment first,
// so its values participate as env overrides.
//
// path selects the YAML file; empty means the default location
// ($XDG_CONFIG_HOME/flowrag/config.yaml), which may be absent. An
// explicitly given path must exist.
func Load(path string) (Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	cfg := defaults()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// fall through to env overrides
	default:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Server.MCPPort < 0 || cfg.Server.MCPPort > 65535 {
		return fmt.Errorf("invalid MCP port %d", cfg.Server.MCPPort)
	}
	if cfg.Chunking.Size <= 0 {
		return fmt.Errorf("invalid chunk size %d", cfg.Chunking.Size)
	}
	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.Size {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Chunking.Overlap, cfg.Chunking.Size)
	}
	return nil
}
