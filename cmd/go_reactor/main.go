package main

import (
	"fmt"
	"os"

	"github.com/andrei-cloud/go_reactor/internal/commands/cli"
)

func main() {
	rootCmd, err := cli.NewRootCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
