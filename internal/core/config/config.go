package config

import (
	"time"

	redisclient "github.com/vietddude/sentinel/internal/infra/redis"
	"github.com/vietddude/sentinel/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Chains    []ChainConfig      `yaml:"chains"`
	Logging   LoggingConfig      `yaml:"logging"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	QueueFile string             `yaml:"queue_file"`
	StateFile string             `yaml:"state_file"`

	// MaxFeeGwei is the global fee ceiling; per-item thresholds can only
	// tighten it.
	MaxFeeGwei uint64 `yaml:"max_fee_gwei"`

	PollInterval time.Duration `yaml:"poll_interval"`
	Jitter       time.Duration `yaml:"jitter"`

	// SaveEveryAttempts bounds queue write amplification for items that
	// keep missing their threshold.
	SaveEveryAttempts uint64 `yaml:"save_every_attempts"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for a specific blockchain.
type ChainConfig struct {
	Name       string           `yaml:"name"`
	RPCTimeout time.Duration    `yaml:"rpc_timeout"`
	Providers  []ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}
