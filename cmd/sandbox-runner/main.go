package main

import (
	"os"

	"github.com/coverbot-io/sandbox-runner/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
