// Package main is the entry point for the gigbell CLI/TUI.
package main

import (
	"os"

	"github.com/nhle/gigbell/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
