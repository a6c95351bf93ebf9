package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragdhq/ragd/internal/config"
	"github.com/ragdhq/ragd/internal/maintenance"
)

// doctorError marks a health check as having found a critical problem, so
// the process exits non-zero while still having printed its report.
type doctorError struct {
	status string
}

func (e *doctorError) Error() string {
	return fmt.Sprintf("health check reported status %q", e.status)
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the health of the index and its stores",
		Long: `doctor probes the vector, keyword, and metadata stores that back
the index and reports whether a checkpoint or migration is currently
holding the maintenance lock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show store paths and lock details")

	return cmd
}

// doctorJSON is the --json output shape.
type doctorJSON struct {
	Status     string            `json:"status"`
	LatencyMS  float64           `json:"latency_ms"`
	Message    string            `json:"message,omitempty"`
	LockHeld   bool              `json:"lock_held"`
	ReportedAt string            `json:"reported_at"`
	Checks     []doctorCheckJSON `json:"checks"`
}

type doctorCheckJSON struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func runDoctor(cmd *cobra.Command, jsonOutput, verbose bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".ragd")

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	indexStore, cleanup, err := openIndexStore(ctx, dataDir, cfg)
	if err != nil {
		report := &maintenance.Report{ReportedAt: time.Now()}
		checks := []doctorCheckJSON{{Name: "store", Status: "fail", Detail: err.Error()}}
		if outErr := writeDoctorReport(cmd, jsonOutput, verbose, dataDir, report, checks); outErr != nil {
			return outErr
		}
		return &doctorError{status: "unhealthy"}
	}
	defer cleanup()

	lock := maintenance.NewFileLock(dataDir)
	report := maintenance.CheckHealth(ctx, indexStore, lock)

	checks := []doctorCheckJSON{
		{Name: "store", Status: report.Store.Status, Detail: report.Store.Message},
	}
	if report.LockHeld {
		checks = append(checks, doctorCheckJSON{Name: "maintenance_lock", Status: "warn", Detail: "a checkpoint or migration is in progress"})
	} else {
		checks = append(checks, doctorCheckJSON{Name: "maintenance_lock", Status: "pass"})
	}

	if err := writeDoctorReport(cmd, jsonOutput, verbose, dataDir, report, checks); err != nil {
		return err
	}

	if report.Store.Status == "unhealthy" {
		return &doctorError{status: report.Store.Status}
	}
	return nil
}

func writeDoctorReport(cmd *cobra.Command, jsonOutput, verbose bool, dataDir string, report *maintenance.Report, checks []doctorCheckJSON) error {
	if jsonOutput {
		out := doctorJSON{
			LockHeld:   report.LockHeld,
			ReportedAt: report.ReportedAt.Format(time.RFC3339),
			Checks:     checks,
		}
		if report.Store != nil {
			out.Status = report.Store.Status
			out.LatencyMS = report.Store.LatencyMS
			out.Message = report.Store.Message
		} else {
			out.Status = "unhealthy"
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "ragd doctor")
	fmt.Fprintln(w, "===========")
	fmt.Fprintln(w)

	for _, c := range checks {
		fmt.Fprintf(w, "[%s] %s", c.Status, c.Name)
		if c.Detail != "" {
			fmt.Fprintf(w, ": %s", c.Detail)
		}
		fmt.Fprintln(w)
	}

	if verbose {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "data directory: %s\n", dataDir)
		if report.LockPath != "" {
			fmt.Fprintf(w, "maintenance lock: %s\n", report.LockPath)
		}
	}

	return nil
}
