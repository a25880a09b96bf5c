package interceptcache

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the deploy-time configuration of the interception layer.
type Config struct {
	// Version tags the cache namespace, bump on every release.
	Version string `yaml:"version"`
	// Origin whose requests are intercepted.
	Origin string `yaml:"origin"`
	// Port for the local proxy to listen on.
	Port int `yaml:"port"`
	// Preload lists URLs fetched into the cache at install time.
	Preload []string    `yaml:"preload"`
	Store   ConfigStore `yaml:"store"`
}

type ConfigStore struct {
	// Backend is one of "memory", "sqlite" or "leveldb".
	Backend string `yaml:"backend"`
	// Path of the database file (sqlite) or directory (leveldb).
	Path string `yaml:"path"`
}

func GetConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, err
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Store.Backend == "" {
		config.Store.Backend = "sqlite"
	}
	if config.Version == "" {
		return config, fmt.Errorf("config: version must be set")
	}
	return config, nil
}
