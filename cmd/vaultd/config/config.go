package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the vaultd daemon (SPEC_FULL.md
// C.4), grounded on services/lendingd/config's YAML load shape, minus the
// TLS/gRPC auth sections this domain's plain JSON-RPC surface does not need.
type Config struct {
	ListenAddress string `yaml:"listen"`
	DataDir       string `yaml:"data_dir"`
	GenesisPath   string `yaml:"genesis_path"`
	Environment   string `yaml:"environment"`
	MetricsPort   int    `yaml:"metrics_port"`
}

// Load reads the YAML configuration from disk and fills in defaults,
// matching the teacher's normalize-then-validate shape.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8090",
		DataDir:       "./vaultd-data",
		GenesisPath:   "./genesis.toml",
		MetricsPort:   9090,
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.GenesisPath = strings.TrimSpace(c.GenesisPath)
	c.Environment = strings.TrimSpace(c.Environment)
}

func (c *Config) validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen address required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir required")
	}
	if c.GenesisPath == "" {
		return fmt.Errorf("genesis_path required")
	}
	return nil
}
