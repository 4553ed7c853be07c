package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const configEnv = "ASKVOICE_CONFIG"

// ResolvePath picks the config file: --config, then $ASKVOICE_CONFIG, then
// $XDG_CONFIG_HOME/askvoice/config.yaml, then ~/.config/askvoice/config.yaml.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(configEnv)} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate, nil
		}
	}

	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("resolve config path: neither XDG_CONFIG_HOME nor a home directory is available")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "askvoice", "config.yaml"), nil
}
