package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{err: errors.New("none")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 64 {
		t.Errorf("Server.MaxConns = %d, want 64", cfg.Server.MaxConns)
	}
	if cfg.Remote.URL != "" {
		t.Errorf("Remote.URL = %q, want empty", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("Remote.Timeout = %s, want 10s", cfg.Remote.Timeout)
	}
	if cfg.Remote.QueueSize != 64 {
		t.Errorf("Remote.QueueSize = %d, want 64", cfg.Remote.QueueSize)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

// TestFileParsing verifies that all fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "server.port": 5000,
  "server.max_conns": 8,
  "remote.url": "https://peer.example:9000",
  "remote.timeout": "3s",
  "remote.queue_size": "16",
  "storage.data_dir": "/tmp/wterm-test",
  "log.level": "debug"
}`)

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.MaxConns != 8 {
		t.Errorf("Server.MaxConns = %d, want 8", cfg.Server.MaxConns)
	}
	if cfg.Remote.URL != "https://peer.example:9000" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout != 3*time.Second {
		t.Errorf("Remote.Timeout = %s, want 3s", cfg.Remote.Timeout)
	}
	if cfg.Remote.QueueSize != 16 {
		t.Errorf("Remote.QueueSize = %d, want 16", cfg.Remote.QueueSize)
	}
	if cfg.Storage.DataDir != "/tmp/wterm-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 5000, "remote.timeout": "3s"}`)
	t.Setenv("WTERM_SERVER_PORT", "6000")
	t.Setenv("WTERM_REMOTE_TIMEOUT", "250ms")
	t.Setenv("WTERM_REMOTE_TOKEN", "env-token")

	cfg, err := loadWith(b, mockKeychain{value: "keychain-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Remote.Timeout != 250*time.Millisecond {
		t.Errorf("Remote.Timeout = %s, want 250ms", cfg.Remote.Timeout)
	}
	if cfg.Remote.Token != "env-token" {
		t.Errorf("Remote.Token = %q, want env-token", cfg.Remote.Token)
	}
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("WTERM_SERVER_PORT", "not-a-number")
	t.Setenv("WTERM_REMOTE_TIMEOUT", "soon")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("Remote.Timeout = %s, want default 10s", cfg.Remote.Timeout)
	}
}

func TestTokenFromKeychain(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{value: "kc-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.Token != "kc-token" {
		t.Errorf("Remote.Token = %q, want kc-token", cfg.Remote.Token)
	}
}

func TestTokenNotReadFromFile(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"remote.token": "plaintext"}`)
	cfg, err := loadWith(b, mockKeychain{err: errors.New("none")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.Token != "" {
		t.Errorf("Remote.Token = %q, secrets must not come from the config file", cfg.Remote.Token)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad scheme", `{"remote.url": "ftp://peer"}`, "scheme"},
		{"missing host", `{"remote.url": "http://"}`, "missing host"},
		{"zero timeout", `{"remote.timeout": "0s"}`, "remote.timeout"},
		{"port out of range", `{"server.port": 70000}`, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(writeTempConfig(t, tt.content), mockKeychain{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestBackendIntError(t *testing.T) {
	clearEnv(t)
	_, err := loadWith(writeTempConfig(t, `{"server.port": 1.5}`), mockKeychain{})
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("err = %v, want server.port read error", err)
	}
}

func TestMalformedFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{not json`), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	b := newFileBackend(path)

	if err := setKeyWith(b, "server.port", "4200"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if err := setKeyWith(b, "remote.timeout", "2s"); err != nil {
		t.Fatalf("set timeout: %v", err)
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, "remote.timeout", "later"); err == nil {
		t.Error("expected error for bad duration")
	}
	if err := setKeyWith(b, "remote.token", "x"); err == nil {
		t.Error("expected error setting a secret")
	}
	if err := setKeyWith(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	clearEnv(t)
	cfg, err := loadWith(newFileBackend(path), mockKeychain{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Port != 4200 || cfg.Remote.Timeout != 2*time.Second {
		t.Errorf("reloaded = port %d timeout %s", cfg.Server.Port, cfg.Remote.Timeout)
	}
}

func TestShowAllOmitsSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Remote.Token = "hidden"
	for _, ki := range ShowAll(cfg) {
		if ki.Key == "remote.token" || ki.Value == "hidden" {
			t.Errorf("secret leaked: %+v", ki)
		}
	}
	for _, k := range ValidKeys() {
		if k == "remote.token" {
			t.Error("ValidKeys lists a secret")
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll has %d entries, ValidKeys %d", len(ShowAll(cfg)), len(ValidKeys()))
	}
}

func TestSecretsFileRoundTrip(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("uses the macOS Keychain")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := (keychainReader{}).Get(secretService, tokenAccount); err == nil {
		t.Fatal("expected error before any token is stored")
	}
	if err := SetToken("tok-1"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	got, err := keychainReader{}.Get(secretService, tokenAccount)
	if err != nil || got != "tok-1" {
		t.Fatalf("Get = (%q, %v), want tok-1", got, err)
	}

	if err := SetToken(""); err != nil {
		t.Fatalf("clearing token: %v", err)
	}
	if _, err := (keychainReader{}).Get(secretService, tokenAccount); err == nil {
		t.Error("token still present after clearing")
	}
}
