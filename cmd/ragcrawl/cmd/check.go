package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcrawl/internal/graph"
	"github.com/Aman-CERP/ragcrawl/internal/output"
	"github.com/Aman-CERP/ragcrawl/internal/validate"
)

func newCheckCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "check-hallucinations SCRIPT_PATH",
		Short: "Validate a script's external symbol uses against the knowledge graph",
		Long: `Drive the same validation check_ai_script_hallucinations exposes over
MCP: parse SCRIPT_PATH, enumerate its external symbol uses (imports, calls,
constructions), and flag uses that don't match anything in the knowledge
graph or code-example index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCheck(ctx, cmd, args[0], mode)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "balanced", "Validation mode: fast, balanced, or thorough")
	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, scriptPath, modeFlag string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", scriptPath, err)
	}

	embedder := buildEmbedder(cfg, nil)
	st, err := buildInitializedStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	graphStore := graph.NewStore()
	checker := validate.NewChecker(graphStore, embedder, st)
	validator := validate.NewValidator(checker)

	mode := validate.ModeBalanced
	switch validate.Mode(modeFlag) {
	case validate.ModeFast, validate.ModeThorough:
		mode = validate.Mode(modeFlag)
	}

	report, err := validator.ValidateScript(ctx, source, scriptPath, mode)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	out.Status("", fmt.Sprintf("overall risk: %.2f", report.OverallRisk))
	for _, f := range report.Findings {
		out.Status(string(f.Category), fmt.Sprintf("line %d: %s %q (confidence %.2f)", f.Line, f.Kind, f.Name, f.Confidence))
	}
	return nil
}
