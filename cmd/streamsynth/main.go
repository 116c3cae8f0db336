// cmd/streamsynth/main.go
//
// This is the entry point for the streamsynth CLI.
//
// Flow:
// 1. Load streamsynth.yaml from the project directory (defaults if missing)
// 2. Layer STREAMSYNTH_* environment variables and flags on top
// 3. Run the requested subcommand: synth, check, view or init

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
