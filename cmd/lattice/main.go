package main

import (
	"os"

	"github.com/lazypower/lattice/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
