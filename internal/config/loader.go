package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Load reads the first existing candidate path — $CONFIG_PATH, then
// ./iotm.yaml, then /etc/iotm.yaml — parses it, resolves any *_file
// secret indirections, and returns it. It never caches a package-level
// instance.
func Load() (*Config, error) {
	candidates := []string{
		os.Getenv("CONFIG_PATH"),
		"iotm.yaml",
		"./iotm.yaml",
		"/etc/iotm.yaml",
	}

	var tried []string
	for _, path := range candidates {
		if path == "" {
			continue
		}
		tried = append(tried, path)

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		resolveSecrets(&cfg)
		validate(&cfg, path)
		log.Printf("[config] loaded %s", path)
		return &cfg, nil
	}

	return nil, fmt.Errorf("config: no configuration file found, tried: %v", tried)
}

func resolveSecrets(cfg *Config) {
	loadSecret(&cfg.MQTT.Password, cfg.MQTT.PasswordFile)
	if cfg.Admin.Oidc != nil {
		loadSecret(&cfg.Admin.Oidc.ClientSecret, cfg.Admin.Oidc.ClientSecretFile)
	}
}

func loadSecret(target *string, file string) {
	if *target != "" || file == "" {
		return
	}
	data, err := os.ReadFile(file)
	if err != nil {
		log.Printf("[config] warning: failed to read secret from %s: %v", file, err)
		return
	}
	*target = strings.TrimSpace(string(data))
}

func validate(cfg *Config, path string) {
	if cfg.Store.Path == "" {
		log.Printf("[config] warning: store.path is empty in %s", path)
	}
	if cfg.MQTT.Broker == "" {
		log.Printf("[config] warning: mqtt.broker is empty in %s", path)
	}
	if cfg.AdapterDir == "" {
		cfg.AdapterDir = "/usr/plume/lib"
	}
}
