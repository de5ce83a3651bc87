package main

import (
	"fmt"
	"os"

	"github.com/defistate/exchange-registry-go/cmd/exchangectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
