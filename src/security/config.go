package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Bcrypt hash of the admin token. Empty disables the guard, only
	// acceptable for local development.
	AdminTokenHash string `envconfig:"ADMIN_TOKEN_HASH" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
