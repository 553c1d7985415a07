// Package config loads mintline settings from a YAML or JSON file with
// MINTLINE_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/pkg/persistence/middleware"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MINTLINE_"

// Config is the full set of settings of the mintline binary.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Signer  SignerConfig  `mapstructure:"signer" yaml:"signer"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

type LogConfig struct {
	Level  string         `mapstructure:"level" yaml:"level"`
	Format logging.Format `mapstructure:"format" yaml:"format"`
}

// BackendConfig points at the issuance backend. An empty URL selects the
// built-in simulated backend.
type BackendConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst       int           `mapstructure:"burst" yaml:"burst"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// Signer modes.
const (
	SignerPrompt  = "prompt"
	SignerRemote  = "remote"
	SignerMemory  = "memory"
	SignerCommand = "command"
)

type SignerConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	URL   string `mapstructure:"url" yaml:"url"`
	Token string `mapstructure:"token" yaml:"token"`
	// Command and Args run an external signing tool in command mode.
	Command string        `mapstructure:"command" yaml:"command"`
	Args    []string      `mapstructure:"args" yaml:"args"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type NetworkConfig struct {
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase"`
	Explorer   string `mapstructure:"explorer" yaml:"explorer"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

type StoreConfig struct {
	Driver string      `mapstructure:"driver" yaml:"driver"`
	Dir    string      `mapstructure:"dir" yaml:"dir"`
	Redis  RedisConfig `mapstructure:"redis" yaml:"redis"`
	// EncryptionKey, hex encoded, seals transaction payloads at rest.
	// FallbackKeys still open payloads sealed before a key rotation.
	EncryptionKey string   `mapstructure:"encryption_key" yaml:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys" yaml:"fallback_keys"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	// TTL expires settled workflows (IDLE or SUCCESS); unfinished ones are kept.
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// TestnetPassphrase is the default network identifier handed to signers.
const TestnetPassphrase = "Test SDF Network ; September 2015"

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: logging.FormatText},
		Backend: BackendConfig{RateLimit: 5, Burst: 10},
		Signer:  SignerConfig{Mode: SignerPrompt},
		Network: NetworkConfig{
			Passphrase: TestnetPassphrase,
			Explorer:   "https://stellar.expert/explorer/testnet",
		},
		Poll:  PollConfig{Interval: 2 * time.Second, Timeout: 60 * time.Second},
		Store: StoreConfig{Driver: DriverFile, Dir: filepath.Join(".mintline", "workflows")},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// envKeys lists the dotted keys that can be overridden from the environment.
// backend.api_key is read from MINTLINE_BACKEND_API_KEY.
var envKeys = []string{
	"log.level", "log.format",
	"backend.url", "backend.api_key", "backend.rate_limit", "backend.burst", "backend.call_timeout",
	"signer.mode", "signer.url", "signer.token", "signer.command", "signer.args", "signer.timeout",
	"network.passphrase", "network.explorer",
	"poll.interval", "poll.timeout",
	"store.driver", "store.dir", "store.encryption_key", "store.fallback_keys",
	"store.redis.addr", "store.redis.password", "store.redis.db", "store.redis.prefix",
	"store.redis.ttl", "store.redis.lock_ttl",
	"server.addr", "server.shutdown_timeout",
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads path (YAML unless it ends in .json), applies environment
// overrides and validates the result. An empty path starts from the defaults.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	raw := map[string]any{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			err = json.Unmarshal(data, &raw)
		} else {
			err = yaml.Unmarshal(data, &raw)
		}
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	for _, key := range envKeys {
		if v, ok := lookup(EnvName(key)); ok {
			setPath(raw, key, v)
		}
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setPath stores value under a dotted key, creating intermediate maps.
func setPath(m map[string]any, key, value string) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != logging.FormatText && c.Log.Format != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("log.format must be %q or %q", logging.FormatText, logging.FormatJSON))
	}

	if c.Backend.RateLimit < 0 {
		errs = append(errs, errors.New("backend.rate_limit must not be negative"))
	}
	if c.Backend.CallTimeout < 0 {
		errs = append(errs, errors.New("backend.call_timeout must not be negative"))
	}

	switch c.Signer.Mode {
	case SignerPrompt, SignerMemory:
	case SignerRemote:
		if c.Signer.URL == "" {
			errs = append(errs, errors.New("signer.url is required in remote mode"))
		}
	case SignerCommand:
		if c.Signer.Command == "" {
			errs = append(errs, errors.New("signer.command is required in command mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown signer.mode %q", c.Signer.Mode))
	}

	if c.Network.Passphrase == "" {
		errs = append(errs, errors.New("network.passphrase is required"))
	}

	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll.interval must be positive"))
	}
	if c.Poll.Timeout < c.Poll.Interval {
		errs = append(errs, errors.New("poll.timeout must not be shorter than poll.interval"))
	}

	switch c.Store.Driver {
	case DriverMemory, DriverFile:
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Store.EncryptionKey != "" {
		if _, err := middleware.ParseKey(c.Store.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption_key: %w", err))
		}
	} else if len(c.Store.FallbackKeys) > 0 {
		errs = append(errs, errors.New("store.fallback_keys requires store.encryption_key"))
	}
	for i, k := range c.Store.FallbackKeys {
		if _, err := middleware.ParseKey(k); err != nil {
			errs = append(errs, fmt.Errorf("store.fallback_keys[%d]: %w", i, err))
		}
	}

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// Simulated reports whether the built-in backend replaces the remote one.
func (c Config) Simulated() bool {
	return c.Backend.URL == ""
}
