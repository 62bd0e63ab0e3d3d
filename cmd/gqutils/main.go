// Package main provides the CLI entry point for gqutils.
package main

import (
	"os"

	"github.com/pradyumna-smpx/gqutils/cmd/gqutils/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
