package main

import (
	"os"

	"github.com/allancalix/clerk/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
