package utils

import (
	"os"
)

// MakeDir creates a directory with all parent directories
func MakeDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}
