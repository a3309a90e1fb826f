package main

import (
	"os"

	"github.com/bhavesh0009/options-day-trader-agent/cmd/odta/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
