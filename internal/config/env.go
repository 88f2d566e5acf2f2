package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads KEY=VALUE files into the process environment. Missing
// files are skipped and variables already present in the environment are
// never overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}
