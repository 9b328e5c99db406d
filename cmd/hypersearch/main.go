// Package main provides the entry point for the hypersearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/hypersearch/cmd/hypersearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
