package utils

import (
	"os"
	"strings"

	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from the given .env files and returns a
// snapshot of the whole environment. Variables already set in the process are
// never overridden by a file
func LoadEnv(files ...string) map[string]string {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logging.Default().Warn("could not load env file", "file", file, "error", err)
		}
	}

	config := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if ok && key != "" {
			config[key] = value
		}
	}

	return config
}

// GetEnvWithDefault returns an environment variable value or a default if not set
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
