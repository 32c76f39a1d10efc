package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcrawl/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool
	var jsonOutput bool
	var skipBackend bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and backend reachability",
		Long: `Run diagnostics to ensure ragcrawl can operate correctly.

Checks:
  - Disk space (100MB minimum)
  - Memory availability (1GB minimum; compared against a fixed 4GB
    estimate, system memory is not measured)
  - Write permissions
  - File descriptor limits (1024 minimum)
  - Embedding backend reachability
  - Vector store initialization

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  ragcrawl doctor

  # JSON output for scripting
  ragcrawl doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput, skipBackend)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&skipBackend, "skip-backend", false, "Skip embedding/vector-store reachability checks")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput, skipBackend bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, root)

	if !skipBackend {
		cfg, _, err := loadConfig()
		if err == nil {
			embedder := buildEmbedder(cfg, nil)
			if st, err := buildStore(ctx, cfg); err == nil {
				results = append(results, checker.RunBackendChecks(ctx, embedder, st, cfg.Tuning.EmbeddingDimensions)...)
			}
		}
	}

	if jsonOutput {
		return doctorOutputJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	if checker.HasCriticalFailures(results) {
		return &doctorError{message: "system check failed"}
	}
	return nil
}

type doctorError struct{ message string }

func (e *doctorError) Error() string { return e.message }

type doctorJSON struct {
	Status   string            `json:"status"`
	Checks   []doctorCheckJSON `json:"checks"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

type doctorCheckJSON struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func doctorOutputJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSON{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorCheckJSON, len(results)),
	}
	for i, r := range results {
		out.Checks[i] = doctorCheckJSON{Name: r.Name, Status: r.Status.String(), Message: r.Message, Required: r.Required, Details: r.Details}
		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
