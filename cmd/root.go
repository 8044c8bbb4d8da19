package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sambabib/nuget-audit/pkg/config"
)

// Version is set during build using ldflags
var Version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "nuget-audit",
	Short:   "Audits NuGet dependencies across a .NET solution",
	Long:    `nuget-audit runs the dotnet package listings for a solution, reconciles outdated, deprecated and vulnerable packages into one report, and enriches it with registry metadata.`,
	Version: Version,
}

// Execute runs the root command. Exit status: 0 on success (including runs
// with degraded data), 1 on runtime failure, 2 on invalid configuration, 130
// on cancellation.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		switch {
		case errors.Is(err, config.ErrInvalid):
			os.Exit(2)
		case errors.Is(err, context.Canceled):
			os.Exit(130)
		default:
			os.Exit(1)
		}
	}
}
