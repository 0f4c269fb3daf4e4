// Package specs provides the embedded FHIR definitions the indexer ships with.
//
// Each version directory holds:
//   - search-parameters.json: a Bundle of SearchParameter resources
//   - element-types.json: a compact element type table used to tag values
//
// Usage:
//
//	data, err := specs.ReadFile(fi.R4, specs.SpecFiles.SearchParameters)
//	if err != nil {
//	    return err
//	}
package specs

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	fi "github.com/gofhir/indexer"
)

// Embedded spec files. Only R4 ships a curated set today.
//
//go:embed r4/*.json
var R4Specs embed.FS

// ErrNoEmbeddedSpecs is returned for versions without embedded files.
var ErrNoEmbeddedSpecs = errors.New("no embedded specs for FHIR version")

// SpecFiles contains the standard file names in each version directory.
var SpecFiles = struct {
	SearchParameters string
	ElementTypes     string
}{
	SearchParameters: "search-parameters.json",
	ElementTypes:     "element-types.json",
}

// GetSpecsFS returns the embedded filesystem and directory name for a FHIR version.
// The returned directory name should be used as a prefix when reading files.
func GetSpecsFS(version fi.FHIRVersion) (embed.FS, string, error) {
	if !version.IsValid() {
		return embed.FS{}, "", fmt.Errorf("unsupported FHIR version: %s", version)
	}
	switch dir := version.EmbeddedDir(); dir {
	case "r4":
		return R4Specs, dir, nil
	default:
		return embed.FS{}, "", fmt.Errorf("%w %s", ErrNoEmbeddedSpecs, version)
	}
}

// ListFiles returns the list of available files for a FHIR version.
func ListFiles(version fi.FHIRVersion) ([]string, error) {
	fsys, dir, err := GetSpecsFS(version)
	if err != nil {
		return nil, err
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}

// ReadFile reads a file from the embedded specs for a given version.
func ReadFile(version fi.FHIRVersion, filename string) ([]byte, error) {
	fsys, dir, err := GetSpecsFS(version)
	if err != nil {
		return nil, err
	}

	path := dir + "/" + filename
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

// HasFile checks if a file exists in the embedded specs for a given version.
func HasFile(version fi.FHIRVersion, filename string) bool {
	fsys, dir, err := GetSpecsFS(version)
	if err != nil {
		return false
	}

	_, err = fs.Stat(fsys, dir+"/"+filename)
	return err == nil
}
