package util

import (
	"os"
	"path/filepath"
)

// DataDirEnv overrides the data directory.
const DataDirEnv = "BLUE_ATT_DIR"

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv(DataDirEnv); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".blue-att")
	}
	return filepath.Join(home, ".blue-att")
}

// GetDeviceCacheDir returns the data directory of one server instance
func GetDeviceCacheDir(instance string) string {
	return filepath.Join(GetDataDir(), instance)
}

// GetSocketDir returns the directory where Unix domain sockets are stored,
// creating it if needed.
func GetSocketDir() (string, error) {
	socketDir := filepath.Join(GetDataDir(), "sockets")
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return "", err
	}
	return socketDir, nil
}
