//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "wterm", "secrets.json")
}

type secretsFile map[string]map[string]string

func readSecrets(path string) (secretsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var secrets secretsFile
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func keychainGet(service, account string) ([]byte, error) {
	secrets, err := readSecrets(secretsFilePath())
	if err != nil {
		return nil, fmt.Errorf("secret store not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("account %q not found in service %q", account, service)
	}
	return []byte(val), nil
}

// keychainSet stores value, or removes the account when value is empty.
func keychainSet(service, account, value string) error {
	p := secretsFilePath()

	secrets, err := readSecrets(p)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if secrets == nil {
		secrets = make(secretsFile)
	}
	if value == "" {
		delete(secrets[service], account)
	} else {
		if secrets[service] == nil {
			secrets[service] = make(map[string]string)
		}
		secrets[service][account] = value
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}
