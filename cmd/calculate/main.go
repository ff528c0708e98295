// Package main is the entry point for the calculate CLI.
package main

import (
	"os"

	"github.com/organic-programming/calculate/internal/cli"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		cli.PrintUsage()
		os.Exit(0)
	}

	code := cli.Run(os.Args[1:], version)
	os.Exit(code)
}
