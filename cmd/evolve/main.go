// Command evolve is a terminal idle game with local saves and optional
// cloud sync.
package main

import (
	"os"

	"github.com/roach88/evolve/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
