package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SectorAPIBaseURL string `envconfig:"SECTOR_API_BASE_URL" default:"https://sectors.example.com"`
	SectorAPIKey     string `envconfig:"SECTOR_API_KEY" default:""`
	DefaultSector    string `envconfig:"DEFAULT_SECTOR" default:"unknown"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
