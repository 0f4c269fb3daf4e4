package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofhir/fhir/r4"
	"golang.org/x/sync/errgroup"

	"github.com/gofhir/indexer/schema"
)

// LoadStats contains statistics about package loading.
type LoadStats struct {
	SearchParameters     int64
	StructureDefinitions int64
	Errors               int64
	PackagesLoaded       int
}

// PackageLoader loads FHIR packages into a registry and, optionally, a schema
// index. Custom resources and profiles ship their StructureDefinitions next to
// their SearchParameters, so both are read in one pass.
type PackageLoader struct {
	registry *Registry
	index    *schema.Index
	mu       sync.Mutex // guards index
}

// NewPackageLoader creates a new package loader. index may be nil.
func NewPackageLoader(registry *Registry, index *schema.Index) *PackageLoader {
	return &PackageLoader{registry: registry, index: index}
}

// packageFiles lists the JSON resource files of an extracted package.
func packageFiles(packageDir string) ([]string, error) {
	// Find the package content directory
	contentDir := packageDir
	packageSubDir := filepath.Join(packageDir, "package")
	if _, err := os.Stat(packageSubDir); err == nil {
		contentDir = packageSubDir
	}

	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	// StructureDefinitions first so the index is complete before anything else
	var structureDefs, others []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		// Skip package.json and .index.json
		if name == "package.json" || name == ".index.json" {
			continue
		}
		path := filepath.Join(contentDir, name)
		if strings.HasPrefix(name, "StructureDefinition-") {
			structureDefs = append(structureDefs, path)
		} else {
			others = append(others, path)
		}
	}
	return append(structureDefs, others...), nil
}

// LoadPackage loads a single package from a directory.
func (l *PackageLoader) LoadPackage(packageDir string) (*LoadStats, error) {
	files, err := packageFiles(packageDir)
	if err != nil {
		return nil, err
	}

	stats := &LoadStats{}
	for _, path := range files {
		if err := l.loadFile(path, stats); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
		}
	}
	stats.PackagesLoaded = 1
	return stats, nil
}

// LoadPackageParallel loads a package using up to workers goroutines.
func (l *PackageLoader) LoadPackageParallel(ctx context.Context, packageDir string, workers int) (*LoadStats, error) {
	files, err := packageFiles(packageDir)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 4
	}

	stats := &LoadStats{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := l.loadFile(path, stats); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.PackagesLoaded = 1
	return stats, nil
}

// LoadPackages loads several packages in order.
func (l *PackageLoader) LoadPackages(packageDirs ...string) (*LoadStats, error) {
	total := &LoadStats{}
	for _, dir := range packageDirs {
		stats, err := l.LoadPackage(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load package %s: %w", dir, err)
		}
		mergeStats(total, stats)
	}
	return total, nil
}

// loadFile loads a single JSON file.
func (l *PackageLoader) loadFile(path string, stats *LoadStats) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return l.loadResource(data, stats)
}

// loadResource dispatches one resource by its type.
func (l *PackageLoader) loadResource(data []byte, stats *LoadStats) error {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.ResourceType {
	case "SearchParameter":
		var sp SearchParameter
		if err := json.Unmarshal(data, &sp); err != nil {
			return err
		}
		if l.registry.Add(&sp) {
			atomic.AddInt64(&stats.SearchParameters, 1)
		}

	case "StructureDefinition":
		if l.index == nil {
			return nil
		}
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return err
		}
		l.mu.Lock()
		err := l.index.FromStructureDefinition(&sd)
		l.mu.Unlock()
		if err != nil {
			return err
		}
		atomic.AddInt64(&stats.StructureDefinitions, 1)

	case "Bundle":
		return l.loadBundle(data, stats)
	}
	return nil
}

// loadBundle loads resources from a Bundle.
func (l *PackageLoader) loadBundle(data []byte, stats *LoadStats) error {
	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return err
	}

	for _, entry := range bundle.Entry {
		if entry.Resource == nil {
			continue
		}
		if err := l.loadResource(entry.Resource, stats); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
		}
	}
	return nil
}

// mergeStats merges source stats into target.
func mergeStats(target, source *LoadStats) {
	target.SearchParameters += source.SearchParameters
	target.StructureDefinitions += source.StructureDefinitions
	target.Errors += source.Errors
	target.PackagesLoaded += source.PackagesLoaded
}
