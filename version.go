package fhirindexer

// FHIRVersion represents a FHIR specification version.
type FHIRVersion string

// Supported FHIR versions.
const (
	// R4 is FHIR Release 4 (4.0.1)
	R4 FHIRVersion = "R4"
	// R4B is FHIR Release 4B (4.3.0)
	R4B FHIRVersion = "R4B"
	// R5 is FHIR Release 5 (5.0.0)
	R5 FHIRVersion = "R5"
)

// String returns the version string.
func (v FHIRVersion) String() string {
	return string(v)
}

// IsValid returns true if this is a known FHIR version.
func (v FHIRVersion) IsValid() bool {
	switch v {
	case R4, R4B, R5:
		return true
	default:
		return false
	}
}

// HasEmbeddedDefinitions reports whether a curated search parameter set
// ships with the module for this version.
func (v FHIRVersion) HasEmbeddedDefinitions() bool {
	return v.EmbeddedDir() != ""
}

// EmbeddedDir returns the directory of the embedded definitions for this
// version, or "" when none ship with the module.
func (v FHIRVersion) EmbeddedDir() string {
	cfg, _ := getVersionConfig(v)
	return cfg.EmbeddedDir
}

// FHIRVersionString returns the dotted release number (e.g. "4.0.1"), or ""
// for unknown versions.
func (v FHIRVersion) FHIRVersionString() string {
	cfg, _ := getVersionConfig(v)
	return cfg.FHIRVersionString
}

// CorePackage returns the registry reference ("name@version") of the FHIR
// core package for this version, or "" for unknown versions.
func (v FHIRVersion) CorePackage() string {
	cfg, ok := getVersionConfig(v)
	if !ok {
		return ""
	}
	return cfg.CorePackageName + "@" + cfg.CorePackageVersion
}

// versionConfig holds version-specific configuration.
type versionConfig struct {
	// CorePackage is the FHIR core package the search parameters come from
	CorePackageName    string
	CorePackageVersion string

	// FHIRVersionString is the version string used in SearchParameters
	FHIRVersionString string

	// EmbeddedDir is the directory under specs/ holding the curated set
	EmbeddedDir string
}

// versionConfigs maps FHIR versions to their configurations.
var versionConfigs = map[FHIRVersion]versionConfig{
	R4: {
		CorePackageName:    "hl7.fhir.r4.core",
		CorePackageVersion: "4.0.1",
		FHIRVersionString:  "4.0.1",
		EmbeddedDir:        "r4",
	},
	R4B: {
		CorePackageName:    "hl7.fhir.r4b.core",
		CorePackageVersion: "4.3.0",
		FHIRVersionString:  "4.3.0",
	},
	R5: {
		CorePackageName:    "hl7.fhir.r5.core",
		CorePackageVersion: "5.0.0",
		FHIRVersionString:  "5.0.0",
	},
}

// getVersionConfig returns the configuration for a FHIR version.
func getVersionConfig(v FHIRVersion) (versionConfig, bool) {
	cfg, ok := versionConfigs[v]
	return cfg, ok
}
