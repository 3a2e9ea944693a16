package main

import (
	"os"

	"github.com/assist-by/fleetguard/cmd/trader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
