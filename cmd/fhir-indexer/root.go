package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fhir-indexer",
		Short: "Extract FHIR search index entries from resources",
		Long: `fhir-indexer evaluates the search parameters declared for a FHIR resource
type and prints the typed index entries (number, date, string, token,
reference, quantity, uri) a FHIR server would store for each resource.

Configuration is read from flags, FHIR_INDEXER_* environment variables and
an optional .fhir-indexer.yaml file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addConfigFlags(root)

	root.AddCommand(
		newIndexCmd(),
		newParamsCmd(),
		newBundleCmd(),
	)

	return root
}
