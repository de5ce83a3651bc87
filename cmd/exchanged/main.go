package main

import (
	"os"

	"github.com/defistate/exchange-registry-go/cmd/exchanged/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
