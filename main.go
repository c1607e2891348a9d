package main

import (
	"os"

	"github.com/wallet-back/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}