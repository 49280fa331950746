// Package main runs a velocity-steered actor against the headless
// simulation host.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (built: %s)", version, buildDate)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
