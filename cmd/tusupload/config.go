package main

import (
	"os"
	"path/filepath"

	"github.com/imdario/mergo"
	yaml "gopkg.in/yaml.v3"

	"github.com/auriora/tusclient/internal/logging"
)

// config is the optional on-disk configuration the CLI merges under its
// flags, adapted from the teacher's onedriver config.yml layout. The
// session engine itself never parses this — it only ever receives plain
// constructor arguments (see SPEC_FULL.md §A.3).
type config struct {
	BaseURL         string `yaml:"baseUrl"`
	AppName         string `yaml:"appName"`
	LogLevel        string `yaml:"log"`
	InsecureSkipTLS bool   `yaml:"insecureSkipTLS"`
	BearerToken     string `yaml:"bearerToken"`
}

// defaultConfigPath returns the default config location for this CLI.
func defaultConfigPath() string {
	confDir, err := os.UserConfigDir()
	if err != nil {
		return ".tusupload.yml"
	}
	return filepath.Join(confDir, "tusupload/config.yml")
}

func createDefaultConfig() config {
	return config{
		AppName:  "tusupload",
		LogLevel: "info",
	}
}

// loadConfig reads path, if present, and merges it over the defaults with
// mergo — a flag value of "" never overwrites a configured one, matching
// the teacher's LoadConfig/mergeWithDefaults pattern.
func loadConfig(path string, log logging.Logger) config {
	defaults := createDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return defaults
	}

	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not parse config file, using defaults")
		return defaults
	}

	if err := mergo.Merge(&cfg, defaults); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not merge config with defaults")
		return defaults
	}
	return cfg
}
