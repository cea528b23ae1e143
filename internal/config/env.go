package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads environment variables from .env/.env.local before config
// parsing, first match wins. Existing process variables are not overwritten.
func LoadEnvFile() {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}
