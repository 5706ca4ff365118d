package main

import (
	"os"

	"github.com/docrender/docrender/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
