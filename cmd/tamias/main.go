package main

import (
	"os"

	"github.com/tamias-ai/tamias/cmd/cli"
	"github.com/tamias-ai/tamias/pkg/version"
)

func main() {
	cli.RootCmd.SetVersionTemplate(version.GetInfo().String() + "\n")
	if err := cli.RootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with error code
		os.Exit(1)
	}
}
