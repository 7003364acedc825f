// Package main provides the entry point for the kitchen CLI.
package main

import (
	"fmt"
	"os"

	"github.com/kitchenai/kitchen/cmd/kitchen/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
