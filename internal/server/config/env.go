package config

import "github.com/kelseyhightower/envconfig"

// parseEnv overlays CLOUDWARDEN_* environment variables. Unset variables
// leave the current value untouched.
func parseEnv(config *Config) error {
	return envconfig.Process(EnvPrefix, config)
}
