// Package main provides the entry point for the contextfinder CLI.
package main

import (
	"os"

	"github.com/contextfinder/contextfinder/cmd/contextfinder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
