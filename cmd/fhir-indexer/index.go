package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	fi "github.com/gofhir/indexer"
)

// indexOutput is the JSON output for one indexed resource.
type indexOutput struct {
	Source  string              `json:"source"`
	Indices *fi.ResourceIndices `json:"indices,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <file>... | -",
		Short: "Index resources and print their entries as JSON",
		Example: `  fhir-indexer index patient.json
  fhir-indexer index 'resources/*.json'
  cat patient.json | fhir-indexer index -`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIndex,
	}
}

type source struct {
	name string
	data []byte
	err  error
}

// readSources expands glob patterns and reads every input. "-" reads stdin.
func readSources(stdin io.Reader, args []string) []source {
	var sources []source
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(stdin)
			sources = append(sources, source{name: "stdin", data: data, err: err})
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			sources = append(sources, source{name: arg, err: fmt.Errorf("bad pattern: %w", err)})
			continue
		}
		if len(matches) == 0 {
			sources = append(sources, source{name: arg, err: fmt.Errorf("no files match pattern")})
			continue
		}
		for _, match := range matches {
			data, err := os.ReadFile(match)
			sources = append(sources, source{name: match, data: data, err: err})
		}
	}
	return sources
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := cfg.Logger(cmd)
	ctx := cmd.Context()

	idx, err := buildIndexer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer idx.Close()

	sources := readSources(cmd.InOrStdin(), args)

	// Index readable sources as one batch
	var data [][]byte
	var positions []int
	for i, s := range sources {
		if s.err == nil {
			data = append(data, s.data)
			positions = append(positions, i)
		}
	}
	batch := idx.IndexBatch(ctx, data)

	outputs := make([]indexOutput, len(sources))
	failed := 0
	for i, s := range sources {
		outputs[i].Source = s.name
		if s.err != nil {
			outputs[i].Error = s.err.Error()
			failed++
		}
	}
	for n, r := range batch.Results {
		out := &outputs[positions[n]]
		if r.Error != nil {
			out.Error = r.Error.Error()
			failed++
			continue
		}
		out.Indices = r.Indices
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(outputs); err != nil {
		return err
	}

	log.Debug("indexed %d resources in %s", len(data), batch.TotalDuration)

	if failed > 0 {
		return fmt.Errorf("%d of %d resources failed", failed, len(sources))
	}
	return nil
}
