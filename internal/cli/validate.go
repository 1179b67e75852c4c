package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/queryir"
)

// ValidationResult reports which backends can run a document's query.
type ValidationResult struct {
	Entity   string          `json:"entity"`
	Portable bool            `json:"portable"`
	Backends []BackendReport `json:"backends"`
}

// BackendReport is the outcome for one backend.
type BackendReport struct {
	Backend string `json:"backend"`
	Status  string `json:"status"` // "ok", "unsupported" or "error"
	Feature string `json:"feature,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <document>",
		Short: "Report which backends can run a query document",
		Long: `Compile the query in a document for every backend and report which
of them can express it. Nothing is executed.

Exits 1 when at least one backend cannot run the query.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	doc, err := LoadDocument(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	q, err := doc.Query()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidDocument, err)
	}

	result := ValidationResult{Entity: doc.Entity, Portable: true}
	for _, p := range backend.NewCompilers(cfg.Backends, nil).Check(q) {
		report := BackendReport{Backend: p.Kind.String(), Status: metrics.Outcome(p.Err)}
		if p.Err != nil {
			result.Portable = false
			report.Message = p.Err.Error()
			var compileErr *queryir.CompileError
			if errors.As(p.Err, &compileErr) {
				report.Feature = compileErr.Feature
			}
			logger.Debug("not portable", "backend", report.Backend, "entity", doc.Entity, "error", p.Err)
		}
		formatter.VerboseLog("Checked %s: %s", report.Backend, report.Status)
		result.Backends = append(result.Backends, report)
	}

	if err := outputValidation(formatter, result); err != nil {
		return err
	}
	if !result.Portable {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d backend(s) cannot run the query", doc.Entity, failing(result)))
	}
	return nil
}

func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "%s: %d of %d backend(s) can run the query\n\n",
		result.Entity, len(result.Backends)-failing(result), len(result.Backends))
	for _, r := range result.Backends {
		if r.Status == metrics.OutcomeOK {
			fmt.Fprintf(formatter.Writer, "  ✓ %s\n", r.Backend)
			continue
		}
		fmt.Fprintf(formatter.Writer, "  ✗ %s: %s\n", r.Backend, r.Message)
	}
	return nil
}

func failing(result ValidationResult) int {
	n := 0
	for _, r := range result.Backends {
		if r.Status != metrics.OutcomeOK {
			n++
		}
	}
	return n
}
