package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/osirisdev/osiris/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "osiris %s\n", version.Version)
		fmt.Fprintf(out, "  commit:  %s\n", version.Commit)
		fmt.Fprintf(out, "  built:   %s\n", version.Date)
		fmt.Fprintf(out, "  go:      %s\n", runtime.Version())
		fmt.Fprintf(out, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "  fips:    %s\n", version.FIPS)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
