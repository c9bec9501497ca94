package main

import (
	"os"

	"github.com/michaelv2/claude-cortex-core/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
