package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	ktoml "github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: TGF_BOT__TOKEN sets bot.token.
const EnvPrefix = "TGF_"

// Config represents the global ~/.tgfilter/config.toml.
type Config struct {
	DefaultInstance string   `koanf:"default_instance" toml:"default_instance"`
	Queue           Queue    `koanf:"queue" toml:"queue"`
	Pipeline        Pipeline `koanf:"pipeline" toml:"pipeline"`
	Listener        Listener `koanf:"listener" toml:"listener"`
	Bot             Bot      `koanf:"bot" toml:"bot"`
	Audit           Audit    `koanf:"audit" toml:"audit"`
}

type Queue struct {
	InboundSize  int `koanf:"inbound_size" toml:"inbound_size"`
	OutboundSize int `koanf:"outbound_size" toml:"outbound_size"`
}

type Pipeline struct {
	RestartMinBackoff time.Duration `koanf:"restart_min_backoff" toml:"restart_min_backoff"`
	RestartMaxBackoff time.Duration `koanf:"restart_max_backoff" toml:"restart_max_backoff"`
}

// Listener configures the channel ingestor.
type Listener struct {
	Token     string `koanf:"token" toml:"token"`
	ChannelID int64  `koanf:"channel_id" toml:"channel_id"`
	APIURL    string `koanf:"api_url" toml:"api_url,omitempty"`
}

// Bot configures the delivery bot.
type Bot struct {
	Token         string  `koanf:"token" toml:"token"`
	APIURL        string  `koanf:"api_url" toml:"api_url,omitempty"`
	RatePerSecond float64 `koanf:"rate_per_second" toml:"rate_per_second"`
}

// Audit configures the stalled delivery sweep.
type Audit struct {
	Schedule     string        `koanf:"schedule" toml:"schedule"`
	StalledAfter time.Duration `koanf:"stalled_after" toml:"stalled_after"`
}

// Default returns the configuration used when no file or override sets a key.
func Default() *Config {
	return &Config{
		Queue: Queue{
			InboundSize:  1024,
			OutboundSize: 1024,
		},
		Pipeline: Pipeline{
			RestartMinBackoff: 250 * time.Millisecond,
			RestartMaxBackoff: 30 * time.Second,
		},
		Bot: Bot{
			RatePerSecond: 25,
		},
		Audit: Audit{
			Schedule:     "@every 10m",
			StalledAfter: 5 * time.Minute,
		},
	}
}

// Load reads config from the given path, then applies TGF_* environment
// overrides on top of Default(). A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), ktoml.Parser()); err != nil {
			return nil, oops.In("config").With("config_file", path).Wrapf(err, "parse config")
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.In("config").With("config_file", path).Wrap(err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.In("config").Wrapf(err, "load environment")
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.In("config").Wrapf(err, "unmarshal config")
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
