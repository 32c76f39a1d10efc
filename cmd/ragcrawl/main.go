// Package main provides the entry point for the ragcrawl CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/ragcrawl/cmd/ragcrawl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
