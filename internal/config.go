package internal

import (
	"fmt"
	"os"

	"github.com/hbomb79/Aria/internal/api"
	"github.com/hbomb79/Aria/internal/downloads"
	"github.com/hbomb79/Aria/internal/extract"
	"github.com/ilyakaznacheev/cleanenv"
)

// AriaConfig is the struct used to contain the
// various user config supplied by file, or
// manually inside the code.
type AriaConfig struct {
	Downloads   downloads.Config `yaml:"downloads"`
	Extractor   extract.Config   `yaml:"extractor"`
	RestConfig  api.RestConfig   `yaml:"api"`
	DownloadDir string           `yaml:"download_dir" env:"DOWNLOAD_DIR" env-default:"downloads"`
}

// LoadFromFile loads a configuration file formatted in YAML in to an
// AriaConfig struct. Environment variables override values from the
// file; if the path provided does not exist, the config is populated
// from the environment alone.
func (config *AriaConfig) LoadFromFile(configPath string) error {
	if _, err := os.Stat(configPath); err != nil {
		if readErr := cleanenv.ReadEnv(config); readErr != nil {
			return fmt.Errorf("failed to load configuration from environment - %v", readErr.Error())
		}

		return nil
	}

	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration for AriaConfig - %v", err.Error())
	}

	return nil
}
