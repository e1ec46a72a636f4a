package main

import (
	"fmt"
	"os"

	"markdownfs/internal/cli/commands"
)

// Set with -ldflags "-X main.version=..." at release time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
