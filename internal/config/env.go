package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads .env and .env.local into the process environment.
// Existing variables are never overwritten; missing files are ignored.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", "file", name, "error", err)
		}
	}
}

// parseSchedule parses a daemon schedule interval string.
func parseSchedule(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d, nil
}
