package configs

import (
	"os"

	"github.com/hilthontt/bingo/internal/infrastructure/env"
)

// DetermineConfigPath resolves the config file from the flag value, then
// BINGO_CONFIG, then the usual locations. An empty result means defaults only.
func DetermineConfigPath(flagValue string) string {
	configPath := flagValue

	if configPath == "" {
		configPath = env.GetString("BINGO_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"../../config.yaml", // keep for local dev
			"/etc/bingo/config.yaml",
			"/app/config.yaml", // common in Docker
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
