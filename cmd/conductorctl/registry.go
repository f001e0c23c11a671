package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the demo registry",
}

var registryDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the resolved registry as JSON (registry.Export)",
	Long: `dump builds the same demo registry "run" uses and prints its
registry.Export() document: every capability, context class, infrastructure
node, data source, and service name, the way spec §4.1's export operation
describes it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildDemoRegistry()
		if err != nil {
			return fmt.Errorf("conductorctl: registry setup: %w", err)
		}
		doc, err := reg.Export()
		if err != nil {
			return fmt.Errorf("conductorctl: export registry: %w", err)
		}
		_, err = os.Stdout.Write(append(doc, '\n'))
		return err
	},
}

func init() {
	registryCmd.AddCommand(registryDumpCmd)
	rootCmd.AddCommand(registryCmd)
}
