package registry

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultRegistryURL is the primary FHIR package registry.
	DefaultRegistryURL = "https://packages.fhir.org"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheDir is the default location for cached packages, relative to
	// the user's home directory.
	DefaultCacheDir = ".fhir/packages"

	// VersionLatest represents the "latest" version tag.
	VersionLatest = "latest"

	// maxFileSize bounds each extracted file.
	maxFileSize = 100 * 1024 * 1024
)

// PackageRef represents a reference to a FHIR package.
type PackageRef struct {
	Name    string
	Version string
}

// ParsePackageRef parses "name@version" or "name#version". A missing version
// means the latest one.
func ParsePackageRef(s string) (PackageRef, error) {
	s = strings.TrimSpace(s)
	name, version := s, VersionLatest
	if i := strings.IndexAny(s, "@#"); i >= 0 {
		name, version = s[:i], s[i+1:]
	}
	if name == "" || version == "" {
		return PackageRef{}, fmt.Errorf("invalid package reference %q", s)
	}
	return PackageRef{Name: name, Version: version}, nil
}

// String returns the package reference as "name@version".
func (p PackageRef) String() string {
	if p.Version == "" || p.Version == VersionLatest {
		return p.Name
	}
	return p.Name + "@" + p.Version
}

// Client downloads FHIR packages from a package registry into a local cache.
type Client struct {
	httpClient  *http.Client
	registryURL string
	cacheDir    string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithRegistryURL sets a custom registry URL.
func WithRegistryURL(url string) ClientOption {
	return func(c *Client) {
		c.registryURL = strings.TrimSuffix(url, "/")
	}
}

// WithCacheDir sets a custom cache directory.
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new registry client.
func NewClient(opts ...ClientOption) *Client {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		registryURL: DefaultRegistryURL,
		cacheDir:    filepath.Join(homeDir, DefaultCacheDir),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheDir returns the cache directory path.
func (c *Client) CacheDir() string {
	return c.cacheDir
}

// packageVersions is the registry's package document.
type packageVersions struct {
	DistTags map[string]string `json:"dist-tags"`
	Versions map[string]struct {
		FHIRVersion string `json:"fhirVersion"`
		URL         string `json:"url"`
		Dist        struct {
			Tarball string `json:"tarball"`
		} `json:"dist"`
	} `json:"versions"`
}

// Fetch makes a package available locally, downloading it unless it is
// already cached, and returns its directory.
func (c *Client) Fetch(ctx context.Context, ref PackageRef) (string, error) {
	version := ref.Version
	if version != "" && version != VersionLatest {
		if dir := c.packagePath(ref.Name, version); isPackageCached(dir) {
			return dir, nil
		}
	}

	info, err := c.versions(ctx, ref.Name)
	if err != nil {
		return "", err
	}

	if version == "" || version == VersionLatest {
		latest, ok := info.DistTags[VersionLatest]
		if !ok {
			return "", fmt.Errorf("no latest version found for package %s", ref.Name)
		}
		version = latest
	}

	dir := c.packagePath(ref.Name, version)
	if isPackageCached(dir) {
		return dir, nil
	}

	v, ok := info.Versions[version]
	if !ok {
		return "", fmt.Errorf("version %s not found for package %s", version, ref.Name)
	}
	// Prefer dist.tarball, fallback to url
	tarball := v.Dist.Tarball
	if tarball == "" {
		tarball = v.URL
	}
	if tarball == "" {
		return "", fmt.Errorf("no download URL found for %s@%s", ref.Name, version)
	}

	if err := c.download(ctx, tarball, dir); err != nil {
		return "", fmt.Errorf("failed to download package %s@%s: %w", ref.Name, version, err)
	}
	return dir, nil
}

func (c *Client) versions(ctx context.Context, name string) (*packageVersions, error) {
	resp, err := c.get(ctx, c.registryURL+"/"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package info: %w", err)
	}
	defer resp.Body.Close()

	var info packageVersions
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode package info: %w", err)
	}
	return &info, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) download(ctx context.Context, url, dir string) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := extractTarGz(resp.Body, dir); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("failed to extract package: %w", err)
	}
	return nil
}

// FetchURL downloads a package tarball from a direct URL, such as an
// implementation guide's package.tgz, and returns its directory.
func (c *Client) FetchURL(ctx context.Context, url string) (string, error) {
	dir := filepath.Join(c.cacheDir, "url-"+shortHash(url))
	if isPackageCached(dir) {
		return dir, nil
	}
	if err := c.download(ctx, url, dir); err != nil {
		return "", fmt.Errorf("failed to download package from %s: %w", url, err)
	}
	return dir, nil
}

// ExtractFile extracts a local package tarball into the cache and returns its
// directory.
func (c *Client) ExtractFile(tgzPath string) (string, error) {
	abs, err := filepath.Abs(tgzPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(c.cacheDir, "file-"+shortHash(abs))
	if isPackageCached(dir) {
		return dir, nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("failed to open package file: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := extractTarGz(f, dir); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to extract %s: %w", tgzPath, err)
	}
	return dir, nil
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// ReadManifest reads the package.json from a downloaded package.
func ReadManifest(packageDir string) (*PackageManifest, error) {
	data, err := os.ReadFile(filepath.Join(packageDir, "package", "package.json"))
	if errors.Is(err, os.ErrNotExist) {
		data, err = os.ReadFile(filepath.Join(packageDir, "package.json"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}

	var manifest PackageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	return &manifest, nil
}

// PackageManifest is the package.json in a FHIR package.
type PackageManifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	FHIRVersions []string          `json:"fhirVersions"`
	Dependencies map[string]string `json:"dependencies"`
	Canonical    string            `json:"canonical"`
}

// packagePath returns the local path for a package.
func (c *Client) packagePath(name, version string) string {
	safeName := strings.ReplaceAll(name, "/", "-")
	return filepath.Join(c.cacheDir, safeName+"#"+version)
}

// isPackageCached checks for package.json as indicator of a valid package.
func isPackageCached(packageDir string) bool {
	if _, err := os.Stat(filepath.Join(packageDir, "package", "package.json")); err == nil {
		return true
	}
	_, err := os.Stat(filepath.Join(packageDir, "package.json"))
	return err == nil
}

// extractTarGz extracts a tar.gz archive to a directory.
func extractTarGz(r io.Reader, destDir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	root := filepath.Clean(destDir) + string(os.PathSeparator)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		target := filepath.Join(destDir, header.Name) //nolint:gosec // G305: checked below
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("invalid tar path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		}
	}
}

func writeFile(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, io.LimitReader(r, maxFileSize)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
