package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sambabib/nuget-audit/pkg/audit"
	"github.com/sambabib/nuget-audit/pkg/config"
	"github.com/sambabib/nuget-audit/pkg/dotnet"
	"github.com/sambabib/nuget-audit/pkg/enrich"
	"github.com/sambabib/nuget-audit/pkg/logger"
	"github.com/sambabib/nuget-audit/pkg/output"
	"github.com/sambabib/nuget-audit/pkg/registry"
)

var (
	auditPath      string
	configFile     string
	format         string
	outputFile     string
	maxConcurrency int
	verbose        bool

	onlyOutdated   bool
	onlyDeprecated bool
	onlyVulnerable bool
)

// auditCmd represents the audit subcommand
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit a solution's NuGet dependencies",
	Long:  "Runs the four dotnet package listings (baseline, outdated, deprecated, vulnerable), merges them per project and framework, and renders a report enriched with registry metadata.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit()
	},
}

func runAudit() error {
	logger.SetVerbose(verbose)

	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lister := dotnet.NewCLILister()
	listings := make(map[dotnet.ListingMode]*dotnet.Report)
	failures := 0
	for _, mode := range []dotnet.ListingMode{
		dotnet.ModeBaseline, dotnet.ModeOutdated, dotnet.ModeDeprecated, dotnet.ModeVulnerable,
	} {
		report, err := lister.List(ctx, auditPath, mode)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("audit cancelled: %w", context.Canceled)
			}
			logger.Errorf("listing (%s) failed: %v", mode, err)
			failures++
			continue
		}
		listings[mode] = report
	}
	if failures == 4 {
		return errors.New("all package listings failed; is the solution restored?")
	}

	result, skipped := audit.MergeAll(
		listings[dotnet.ModeBaseline],
		listings[dotnet.ModeOutdated],
		listings[dotnet.ModeDeprecated],
		listings[dotnet.ModeVulnerable],
	)
	if skipped.Total() > 0 {
		logger.Warnf("skipped %d malformed listing entries (%d project(s), %d framework(s))",
			skipped.Total(), skipped.Projects, skipped.Frameworks)
	}

	filtered := audit.FilterAll(result, audit.FilterOptions{
		OnlyOutdated:   onlyOutdated,
		OnlyDeprecated: onlyDeprecated,
		OnlyVulnerable: onlyVulnerable,
	})

	keys := enrich.Dedupe(filtered)
	client := registry.NewClient(cfg.RegistryURL, cfg.HTTPTimeout(), cfg.RetryPolicy())
	pipeline := enrich.New(client, cfg.MaxConcurrentRequests)

	metadata, err := pipeline.Fetch(ctx, keys)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("audit cancelled: %w", context.Canceled)
		}
		return fmt.Errorf("metadata enrichment failed: %w", err)
	}

	if err := render(cfg, filtered, metadata); err != nil {
		return err
	}

	logger.Infof("audited %d project/framework pair(s), %d distinct package version(s) enriched",
		len(filtered), len(keys))
	return nil
}

// loadConfiguration resolves the config file: an explicit --config path wins,
// otherwise the search walks up from the solution directory.
func loadConfiguration() (*config.Config, error) {
	if configFile != "" {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		return cfg, nil
	}

	searchDir := auditPath
	if info, err := os.Stat(auditPath); err == nil && !info.IsDir() {
		searchDir = filepath.Dir(auditPath)
	}
	cfg, err := config.FindAndLoadConfig(searchDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config) {
	if format != "" {
		cfg.Output.Format = format
	}
	if outputFile != "" {
		cfg.Output.File = outputFile
	}
	if maxConcurrency > 0 {
		cfg.MaxConcurrentRequests = maxConcurrency
	}
}

func render(cfg *config.Config, result audit.Result, metadata map[registry.PackageKey]*registry.PackageMetadata) error {
	out := os.Stdout
	if cfg.Output.File != "" {
		f, err := os.Create(cfg.Output.File)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch cfg.Output.Format {
	case "json":
		data, err := output.GenerateJSONReport(result, metadata)
		if err != nil {
			return fmt.Errorf("failed to render JSON report: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "sarif":
		data, err := output.GenerateSarifReport(result, Version)
		if err != nil {
			return fmt.Errorf("failed to render SARIF report: %w", err)
		}
		fmt.Fprintln(out, string(data))
	default:
		output.WriteTextReport(out, result, metadata)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVarP(&auditPath, "path", "p", ".", "Path to the solution or project to audit")
	auditCmd.Flags().StringVar(&configFile, "config", "", "Path to a config file (default: search for "+config.ConfigFileName+")")
	auditCmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json or sarif")
	auditCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the report to a file instead of stdout")
	auditCmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "Maximum concurrent metadata requests (1-20)")
	auditCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	auditCmd.Flags().BoolVar(&onlyOutdated, "only-outdated", false, "Report only outdated packages")
	auditCmd.Flags().BoolVar(&onlyDeprecated, "only-deprecated", false, "Report only deprecated packages")
	auditCmd.Flags().BoolVar(&onlyVulnerable, "only-vulnerable", false, "Report only vulnerable packages")
}
