package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.QueueFile == "" {
		cfg.QueueFile = "queue.yaml"
	}
	if cfg.StateFile == "" {
		cfg.StateFile = "state.json"
	}
	if cfg.MaxFeeGwei == 0 {
		cfg.MaxFeeGwei = 20
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = 5 * time.Second
	}
	if cfg.SaveEveryAttempts == 0 {
		cfg.SaveEveryAttempts = 20
	}

	for i := range cfg.Chains {
		if cfg.Chains[i].RPCTimeout == 0 {
			cfg.Chains[i].RPCTimeout = 10 * time.Second
		}
	}

	return &cfg, nil
}
