// Package dotnet invokes `dotnet list package` and decodes its JSON reports.
package dotnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sambabib/nuget-audit/pkg/logger"
)

// Lister produces one listing report for a solution. Implementations may
// return (nil, error) when the underlying query fails; callers are expected
// to degrade gracefully for the secondary listings.
type Lister interface {
	List(ctx context.Context, solutionPath string, mode ListingMode) (*Report, error)
}

// CLILister shells out to the dotnet CLI.
type CLILister struct {
	// DotnetPath overrides the binary name, mainly for tests.
	DotnetPath string
}

// NewCLILister returns a Lister backed by the `dotnet` binary on PATH.
func NewCLILister() *CLILister {
	return &CLILister{DotnetPath: "dotnet"}
}

// List runs `dotnet list <solution> package [mode] --include-transitive
// --format json` and decodes the output. The solution must already be
// restored; restore problems show up in Report.Problems and are logged.
func (l *CLILister) List(ctx context.Context, solutionPath string, mode ListingMode) (*Report, error) {
	args := []string{"list", solutionPath, "package"}
	if flag := mode.cliFlag(); flag != "" {
		args = append(args, flag)
	}
	args = append(args, "--include-transitive", "--format", "json")

	cmd := exec.CommandContext(ctx, l.DotnetPath, args...)
	logger.Debugf("dotnet: running %s", cmd.String())

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("dotnet list package (%s) failed: %w\nstderr: %s",
				mode, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("dotnet list package (%s) failed: %w", mode, err)
	}

	report, err := ParseReport(output)
	if err != nil {
		return nil, fmt.Errorf("dotnet list package (%s): %w", mode, err)
	}

	for _, p := range report.Problems {
		logger.Warnf("dotnet (%s): %s", mode, p.Text)
	}
	logger.Debugf("dotnet (%s): %d project(s) listed", mode, len(report.Projects))
	return report, nil
}

// ParseReport decodes a machine-readable listing report.
func ParseReport(data []byte) (*Report, error) {
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode listing report: %w", err)
	}
	if report.Version != 1 {
		logger.Warnf("dotnet: unexpected report version %d, continuing anyway", report.Version)
	}
	return &report, nil
}
