package main

import (
	"os"

	"github.com/esoto/expense-tracker-sub008/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
