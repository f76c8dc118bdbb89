package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "osiris",
	Short:         "Osiris -- in-memory POSIX signal and process kernel",
	Long:          "Osiris is a daemon that models POSIX signal delivery and process lifecycle over an HTTP API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
