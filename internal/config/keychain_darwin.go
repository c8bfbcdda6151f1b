//go:build darwin

package config

import "os/exec"

func keychainGet(service, account string) ([]byte, error) {
	return exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
}

// keychainSet stores value, or removes the item when value is empty.
func keychainSet(service, account, value string) error {
	if value == "" {
		return exec.Command("security", "delete-generic-password", "-s", service, "-a", account).Run()
	}
	return exec.Command(
		"security", "add-generic-password",
		"-U",
		"-s", service,
		"-a", account,
		"-w", value,
	).Run()
}
