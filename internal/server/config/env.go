package config

import "os"

// parseEnv overlays values from environment variables. Only the settings an
// operator usually injects via the environment are covered; everything else
// goes through the JSON file or flags.
func parseEnv(config *Config) {
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("AUTHGATE_ADDR"); ok {
		config.EndpointAddr = v
	}
	if v, ok := os.LookupEnv("AUTHGATE_SECRET_SOURCE"); ok {
		config.SecretSource = v
	}
	if v, ok := os.LookupEnv("AUTHGATE_SECRET_FILE"); ok {
		config.SecretFile = v
	}
}
