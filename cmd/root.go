package cmd

import (
	"fmt"

	"github.com/Mmx233/SMQ/cmd/generate"
	"github.com/Mmx233/SMQ/cmd/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const longDescription = `smq runs one node of a peer mesh. Each node owns a peer address, accepts and
dials TCP links, authenticates them with an address handshake and keeps its
outbound links reconnecting until it is stopped.`

var (
	Version = "dev"

	showVersion bool
	debug       bool

	rootCmd = &cobra.Command{
		Use:   "smq",
		Short: "Run an SMQ node that exchanges framed messages with a fixed set of TCP peers",
		Long:  longDescription,
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			SetLogLevel()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if showVersion {
				fmt.Println(Version)
				return
			}
			cmd.Help()
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("failed to execute")
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log every status change and frame at trace level")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print the smq build version and exit")
	rootCmd.AddCommand(run.Cmd)
	rootCmd.AddCommand(generate.Cmd)
}

// SetLogLevel picks trace logging for --debug and info otherwise.
func SetLogLevel() {
	if debug {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
