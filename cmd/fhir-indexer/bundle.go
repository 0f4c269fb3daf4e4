package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/stream"
)

// entryOutput is the JSON line printed for one bundle entry.
type entryOutput struct {
	Index        int                 `json:"index"`
	FullURL      string              `json:"fullUrl,omitempty"`
	ResourceType string              `json:"resourceType,omitempty"`
	ResourceID   string              `json:"id,omitempty"`
	Entries      int                 `json:"entries"`
	Indices      *fi.ResourceIndices `json:"indices,omitempty"`
	Error        string              `json:"error,omitempty"`
}

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle <file> | -",
		Short: "Stream a Bundle and print one JSON line per entry",
		Example: `  fhir-indexer bundle transaction.json
  fhir-indexer bundle --parallel --summary-only big-bundle.json`,
		Args: cobra.ExactArgs(1),
		RunE: runBundle,
	}
	cmd.Flags().Bool("parallel", false, "index entries in parallel (output order is kept)")
	cmd.Flags().Bool("summary-only", false, "print only the final summary")
	cmd.Flags().Bool("with-indices", false, "include the extracted entries in each line")
	return cmd
}

func runBundle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	parallel, _ := cmd.Flags().GetBool("parallel")
	summaryOnly, _ := cmd.Flags().GetBool("summary-only")
	withIndices, _ := cmd.Flags().GetBool("with-indices")

	idx, err := buildIndexer(ctx, cfg, cfg.Logger(cmd))
	if err != nil {
		return err
	}
	defer idx.Close()

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var results <-chan *stream.EntryResult
	if parallel {
		results = idx.IndexBundleStreamParallel(ctx, r)
	} else {
		results = idx.IndexBundleStream(ctx, r)
	}

	// Print each entry while passing it on to the aggregator
	forward := make(chan *stream.EntryResult)
	done := make(chan *stream.BundleStreamResult)
	go func() {
		done <- stream.Aggregate(forward)
	}()

	enc := json.NewEncoder(cmd.OutOrStdout())
	var encErr error
	for result := range results {
		if !summaryOnly && encErr == nil {
			encErr = enc.Encode(toEntryOutput(result, withIndices))
		}
		forward <- result
	}
	close(forward)
	agg := <-done

	if encErr != nil {
		return encErr
	}

	fmt.Fprintln(cmd.ErrOrStderr(), agg.Summary())
	if agg.HasErrors() {
		return fmt.Errorf("%d processing errors", len(agg.ProcessingErrors))
	}
	return nil
}

func toEntryOutput(r *stream.EntryResult, withIndices bool) entryOutput {
	out := entryOutput{
		Index:        r.Index,
		FullURL:      r.FullURL,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	if r.Indices != nil {
		out.Entries = r.Indices.Len()
		if withIndices {
			out.Indices = r.Indices
		}
	}
	return out
}
