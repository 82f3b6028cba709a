package main

import (
	"os"

	"github.com/Mmx233/SMQ/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Node logs go to stderr so stdin and stdout stay free for smq run.
func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: zerolog.TimeFormatUnix,
		NoColor:    false,
	})
}

func main() {
	cmd.Execute()
}
