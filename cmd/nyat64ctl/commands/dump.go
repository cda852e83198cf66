package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func dumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump daemon state from the debug HTTP surface",
	}

	cmd.AddCommand(dumpMappingsCmd())
	cmd.AddCommand(dumpARPCmd())

	return cmd
}

func dumpMappingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings",
		Short: "Dump the configured mapping table",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var views []mappingView
			if err := fetchJSON("/debug/mappings", &views); err != nil {
				return fmt.Errorf("fetch mappings: %w", err)
			}

			out, err := formatMappings(views, outputFormat)
			if err != nil {
				return fmt.Errorf("format mappings: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

func dumpARPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "arp",
		Short: "Dump the live ARP cache",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var views []arpEntryView
			if err := fetchJSON("/debug/arp", &views); err != nil {
				return fmt.Errorf("fetch arp cache: %w", err)
			}

			out, err := formatARPEntries(views, outputFormat)
			if err != nil {
				return fmt.Errorf("format arp entries: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
