package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newParamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "params [ResourceType]",
		Short:   "List the search parameters registered for a resource type",
		Long:    "List the search parameters registered for a resource type, or the indexed resource types when none is given.",
		Example: "  fhir-indexer params Patient\n  fhir-indexer params --package-dir ./us-core Patient",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runParams,
	}
}

func runParams(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	idx, err := buildIndexer(ctx, cfg, cfg.Logger(cmd))
	if err != nil {
		return err
	}
	defer idx.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		for _, t := range idx.Registry().Types() {
			fmt.Fprintln(out, t)
		}
		return nil
	}

	defs, err := idx.Registry().Definitions(ctx, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tEXPRESSION")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, def.Category, def.Path)
	}
	return w.Flush()
}
