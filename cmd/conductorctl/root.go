package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd follows the teacher's cmd/heike bootstrap shape: a package-level
// *cobra.Command built up by each subcommand file's own init, executed from
// main. No PersistentPreRunE config load here — conductorctl takes its
// wiring entirely from flags, since (unlike heike) it has no on-disk
// workspace of its own to discover.
var rootCmd = &cobra.Command{
	Use:   "conductorctl",
	Short: "Example CLI front-end for a conductor deployment",
	Long: `conductorctl drives one conductor turn at a time: it reads a line
from stdin, passes it through gateway.Process, runs the resulting turn (or
resume) through a graph.Driver, and prints the assistant's reply, a pending
approval, or a terminal error report.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
