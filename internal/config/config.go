package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Remote  RemoteConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	MaxConns int
}

// RemoteConfig points the terminal at the peer that confirms global settings.
// An empty URL runs the terminal offline and every write is acknowledged
// locally.
type RemoteConfig struct {
	URL       string
	Token     string
	Timeout   time.Duration
	QueueSize int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4100,
			MaxConns: 64,
		},
		Remote: RemoteConfig{
			Timeout:   10 * time.Second,
			QueueSize: 64,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.wterm.app) and the remote
// token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/wterm/config.json
// and the token falls back to a secrets file under $XDG_DATA_HOME/wterm.
//
// Environment variables (WTERM_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Remote.Token == "" {
		if tok, err := kc.Get(secretService, tokenAccount); err == nil && tok != "" {
			cfg.Remote.Token = tok
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Remote.URL != "" {
		u, err := url.Parse(cfg.Remote.URL)
		if err != nil {
			return fmt.Errorf("invalid remote.url %q: %w", cfg.Remote.URL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid remote.url %q: scheme must be http or https", cfg.Remote.URL)
		}
		if u.Host == "" {
			return fmt.Errorf("invalid remote.url %q: missing host", cfg.Remote.URL)
		}
	}
	if cfg.Remote.Timeout <= 0 {
		return fmt.Errorf("invalid remote.timeout %s: must be positive", cfg.Remote.Timeout)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	return nil
}

const (
	secretService = "wterm"
	tokenAccount  = "remote_token"
)

// keychainReader reads the token from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
