// Command infrapilot is the entry point for the InfraPilot infrastructure-intent agent.
// It provides a CLI interface (via Cobra) and an optional HTTP server with
// a web UI for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/infrapilot/infrapilot/cmd/infrapilot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
