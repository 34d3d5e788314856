// Package main is the entry point for the amanrag CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanrag/cmd/amanrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
