package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/engine"
	"github.com/gofhir/indexer/pkg/logger"
	"github.com/gofhir/indexer/registry"
)

// envPrefix prefixes every environment variable the CLI reads, e.g.
// FHIR_INDEXER_WORKERS or FHIR_INDEXER_LOG_LEVEL.
const envPrefix = "FHIR_INDEXER"

// Config holds CLI configuration. Values come from flags, then environment,
// then the config file, then defaults.
type Config struct {
	FHIRVersion          string   `mapstructure:"fhir-version"`
	Workers              int      `mapstructure:"workers"`
	LogLevel             string   `mapstructure:"log-level"`
	Strict               bool     `mapstructure:"strict"`
	Prune                bool     `mapstructure:"prune"`
	SearchParameters     []string `mapstructure:"search-parameters"`
	StructureDefinitions []string `mapstructure:"structure-definitions"`
	PackageDirs          []string `mapstructure:"package-dir"`
	Packages             []string `mapstructure:"package"`
	CorePackage          bool     `mapstructure:"core-package"`
	PackageFiles         []string `mapstructure:"package-file"`
	PackageURLs          []string `mapstructure:"package-url"`
	RegistryURL          string   `mapstructure:"registry-url"`
	CacheDir             string   `mapstructure:"cache-dir"`
}

// addConfigFlags registers the flags shared by every command.
func addConfigFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default is ./.fhir-indexer.yaml or $HOME/.fhir-indexer.yaml)")
	flags.String("fhir-version", string(fi.R4), "FHIR version (R4, R4B, R5)")
	flags.Int("workers", 0, "parallel workers (default: number of CPUs)")
	flags.String("log-level", "warn", "log level: debug, info, warn, error, none")
	flags.Bool("strict", false, "do not guess the type of elements missing from the schema")
	flags.Bool("prune", true, "drop search parameters whose expression cannot be evaluated")
	flags.StringSlice("search-parameters", nil, "extra SearchParameter bundle file(s)")
	flags.StringSlice("structure-definitions", nil, "extra StructureDefinition bundle file(s)")
	flags.StringSlice("package-dir", nil, "extracted FHIR package directory(ies) to load")
	flags.StringSlice("package", nil, "FHIR package(s) to fetch from the registry (name@version)")
	flags.Bool("core-package", false, "fetch the core package of --fhir-version from the registry")
	flags.StringSlice("package-file", nil, "local package .tgz file(s) to load")
	flags.StringSlice("package-url", nil, "remote package .tgz URL(s) to load")
	flags.String("registry-url", registry.DefaultRegistryURL, "FHIR package registry URL")
	flags.String("cache-dir", "", "package cache directory (default is $HOME/.fhir/packages)")
}

// loadConfig resolves the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName(".fhir-indexer")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	c.FHIRVersion = strings.ToUpper(strings.TrimSpace(c.FHIRVersion))
	if !fi.FHIRVersion(c.FHIRVersion).IsValid() {
		return fmt.Errorf("unsupported FHIR version %q", c.FHIRVersion)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	for _, p := range c.PackageRefs() {
		if _, err := registry.ParsePackageRef(p); err != nil {
			return err
		}
	}
	return nil
}

// PackageRefs returns the registry packages to fetch, led by the core
// package when CorePackage is set.
func (c *Config) PackageRefs() []string {
	if !c.CorePackage {
		return c.Packages
	}
	refs := []string{fi.FHIRVersion(c.FHIRVersion).CorePackage()}
	return append(refs, c.Packages...)
}

// Logger returns a console logger writing to the command's stderr.
func (c *Config) Logger(cmd *cobra.Command) *logger.Logger {
	return logger.NewConsole(cmd.ErrOrStderr(), logger.ParseLevel(c.LogLevel))
}

// buildIndexer creates an indexer and loads every configured definition
// source into it.
func buildIndexer(ctx context.Context, cfg *Config, log *logger.Logger) (*engine.Indexer, error) {
	opts := []fi.Option{
		fi.WithStrictSchema(cfg.Strict),
		fi.WithLogger(log),
	}
	if cfg.Workers > 0 {
		opts = append(opts, fi.WithWorkerCount(cfg.Workers))
	}

	idx, err := engine.New(ctx, fi.FHIRVersion(cfg.FHIRVersion), opts...)
	if err != nil {
		return nil, err
	}

	for _, path := range cfg.StructureDefinitions {
		n, err := idx.Schema().LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		log.Info("loaded %d structure definitions from %s", n, path)
	}

	for _, path := range cfg.SearchParameters {
		n, err := idx.Registry().LoadFile(path)
		if err != nil {
			return nil, err
		}
		log.Info("loaded %d search parameters from %s", n, path)
	}

	for _, dir := range cfg.PackageDirs {
		if _, err := idx.LoadPackage(ctx, dir); err != nil {
			return nil, err
		}
	}

	if len(cfg.PackageRefs())+len(cfg.PackageFiles)+len(cfg.PackageURLs) > 0 {
		if err := loadRemotePackages(ctx, cfg, idx); err != nil {
			return nil, err
		}
	}

	if cfg.Prune {
		if rejected := idx.PruneUnsupported(); len(rejected) > 0 {
			log.Info("dropped %d search parameters with unsupported expressions", len(rejected))
		}
	}

	return idx, nil
}

// loadRemotePackages makes every configured package available in the package
// cache and loads it.
func loadRemotePackages(ctx context.Context, cfg *Config, idx *engine.Indexer) error {
	var clientOpts []registry.ClientOption
	if cfg.RegistryURL != "" {
		clientOpts = append(clientOpts, registry.WithRegistryURL(cfg.RegistryURL))
	}
	if cfg.CacheDir != "" {
		clientOpts = append(clientOpts, registry.WithCacheDir(cfg.CacheDir))
	}
	client := registry.NewClient(clientOpts...)

	var dirs []string
	for _, p := range cfg.PackageRefs() {
		ref, err := registry.ParsePackageRef(p)
		if err != nil {
			return err
		}
		dir, err := client.Fetch(ctx, ref)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", ref, err)
		}
		dirs = append(dirs, dir)
	}
	for _, url := range cfg.PackageURLs {
		dir, err := client.FetchURL(ctx, url)
		if err != nil {
			return err
		}
		dirs = append(dirs, dir)
	}
	for _, path := range cfg.PackageFiles {
		dir, err := client.ExtractFile(path)
		if err != nil {
			return err
		}
		dirs = append(dirs, dir)
	}

	for _, dir := range dirs {
		if _, err := idx.LoadPackage(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}
