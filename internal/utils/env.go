package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/kelsos/realms-tvl/internal/logger"
)

// LoadEnvironment loads .env files from dirs, or from the working directory
// and the executable's directory when none are given. Variables already set
// in the environment win. It returns the files that were loaded.
func LoadEnvironment(dirs ...string) []string {
	if len(dirs) == 0 {
		dirs = []string{"."}
		if execPath, err := os.Executable(); err == nil {
			dirs = append(dirs, filepath.Dir(execPath))
		} else {
			logger.Debug("Could not determine executable path: %v", err)
		}
	}

	var loaded []string
	seen := make(map[string]bool)
	for _, dir := range dirs {
		envPath, err := filepath.Abs(filepath.Join(dir, ".env"))
		if err != nil || seen[envPath] {
			continue
		}
		seen[envPath] = true

		if err := godotenv.Load(envPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("Failed to load %s: %v", envPath, err)
			}
			continue
		}
		logger.Info("Loaded environment from %s", envPath)
		loaded = append(loaded, envPath)
	}
	return loaded
}
