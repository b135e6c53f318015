// Package main is the entry point for the arealloc CLI.
package main

import (
	"os"

	"arealloc/cmd/cli/cmd"
	"arealloc/internal/logging"
)

func main() {
	defer logging.Sync()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
