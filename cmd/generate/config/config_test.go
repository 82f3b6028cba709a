package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mmx233/SMQ/config"
	"github.com/Mmx233/SMQ/examples"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestNodeConfigTemplateFields verifies that the embedded node.yaml template
// parses into config.Node without unknown fields, validates, and uses the
// defaults from config/defaults.go.
func TestNodeConfigTemplateFields(t *testing.T) {
	content, err := examples.NodeConfig()
	require.NoError(t, err, "failed to load node config template")

	var cfg config.Node
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true) // Error on unknown fields
	err = decoder.Decode(&cfg)
	require.NoError(t, err, "node.yaml contains unknown fields or invalid YAML")

	assert.NotEmpty(t, cfg.Name, "name should not be empty")
	assert.NotEmpty(t, cfg.Listen, "listen should not be empty")
	assert.NotEmpty(t, cfg.Peers, "peers should not be empty")
	assert.NotEmpty(t, cfg.MetricsListen, "metrics_listen should not be empty")

	assert.Equal(t, config.DefaultMaxPeers, cfg.MaxPeers, "max_peers should match DefaultMaxPeers")
	assert.Equal(t, config.DefaultDialTimeout, cfg.DialTimeout, "dial_timeout should match DefaultDialTimeout")
	assert.Equal(t, config.DefaultReconnectInterval, cfg.Reconnect.Interval,
		"reconnect.interval should match DefaultReconnectInterval")
	assert.Equal(t, config.DefaultReconnectFactor, cfg.Reconnect.Factor,
		"reconnect.factor should match DefaultReconnectFactor")
	assert.Equal(t, config.DefaultPayloadCodec, cfg.PayloadCodec,
		"payload_codec should match DefaultPayloadCodec")

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
}

func TestWriteNodeConfig(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "node.yaml")

	require.NoError(t, writeNodeConfig(outputPath))
	written, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	template, err := examples.NodeConfig()
	require.NoError(t, err)
	assert.Equal(t, template, written)

	err = writeNodeConfig(outputPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file already exists")
}
