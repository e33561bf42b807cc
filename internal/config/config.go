// ABOUTME: Configuration loading for the rpcbridge server
// ABOUTME: YAML files via viper with XDG expansion for storage paths

package config

import (
	"fmt"
	"os"

	"github.com/harper/rpcbridge/internal/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	ProtocolJSON = "json"
	ProtocolXML  = "xml"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	CallLog CallLogConfig `mapstructure:"calllog"`
}

type ServerConfig struct {
	// Protocol selects the envelope codec for the serve loop: json or xml.
	Protocol string `mapstructure:"protocol"`
	// Debug opts in to internal error detail on the wire and DEBUG logging.
	Debug bool `mapstructure:"debug"`
	// ParallelBatches lets batch items run concurrently.
	ParallelBatches bool `mapstructure:"parallel_batches"`
	// Env is passed through to handlers that need ambient settings.
	Env map[string]string `mapstructure:"env"`
}

type CallLogConfig struct {
	// Path of the SQLite call log; empty disables auditing.
	Path string `mapstructure:"path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.protocol", ProtocolJSON)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Viper lowercases all map keys, but environment variables are
	// case-sensitive. Parse YAML directly to preserve key case for server.env.
	//nolint:gosec // config file path from validated user input
	data, err := os.ReadFile(path)
	if err == nil {
		var rawConfig struct {
			Server struct {
				Env map[string]string `yaml:"env"`
			} `yaml:"server"`
		}
		if yaml.Unmarshal(data, &rawConfig) == nil && len(rawConfig.Server.Env) > 0 {
			cfg.Server.Env = rawConfig.Server.Env
		}
	}

	cfg.CallLog.Path = xdg.ExpandPath(cfg.CallLog.Path)

	if cfg.Server.Protocol != ProtocolJSON && cfg.Server.Protocol != ProtocolXML {
		return nil, fmt.Errorf("invalid server.protocol: %s (must be 'json' or 'xml')", cfg.Server.Protocol)
	}

	return &cfg, nil
}
