package main

import (
	"os"

	"github.com/roach88/racelab/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Errors go to stderr in the requested format so stdout keeps only
		// the result document.
		format, _ := cmd.PersistentFlags().GetString("format")
		out := &cli.OutputFormatter{Format: format, Writer: os.Stderr}
		_ = out.Error(err)
		os.Exit(cli.GetExitCode(err))
	}
}
