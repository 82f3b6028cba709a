package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file and unmarshals it into the specified type.
// T must be a struct type that can be unmarshaled from YAML.
func LoadConfig[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg T
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// LoadNodeConfig reads a node YAML configuration file, applies defaults,
// removes duplicate peers and validates the result.
func LoadNodeConfig(path string) (*Node, error) {
	logger := log.With().Str("com", "config-loader").Logger()

	cfg, err := LoadConfig[Node](path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if cfg.DeduplicatePeers() {
		logger.Warn().Msg("duplicate peer addresses detected and removed from configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("node configuration validation failed: %w", err)
	}

	logger.Info().
		Str("name", cfg.Name).
		Uint16("address", cfg.Address).
		Int("peer_count", len(cfg.Peers)).
		Msg("loaded node configuration")

	return cfg, nil
}
