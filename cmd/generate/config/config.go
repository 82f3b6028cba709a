package config

import (
	"fmt"
	"os"

	"github.com/Mmx233/SMQ/examples"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string // --config flag value

	Cmd = &cobra.Command{
		Use:   "config",
		Short: "Generate a node configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeNodeConfig(configFile)
		},
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", "node.yaml", "output config file path")
}

// writeNodeConfig writes the node template to outputPath. Existing files are never overwritten.
func writeNodeConfig(outputPath string) error {
	logger := log.With().Str("com", "generate").Logger()

	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("file already exists: %s", outputPath)
	}

	content, err := examples.NodeConfig()
	if err != nil {
		return fmt.Errorf("load node config template: %w", err)
	}

	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logger.Info().Str("file", outputPath).Msg("generated node configuration")
	return nil
}
