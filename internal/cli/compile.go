package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/querydoc"
	"github.com/roach88/polystore/internal/queryir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Backend string // target kind
	Output  string // output file path
	Delete  bool   // compile the delete form
}

// CompileResult is the JSON payload of a successful compile.
type CompileResult struct {
	Backend   string          `json:"backend"`
	Entity    string          `json:"entity"`
	Statement string          `json:"statement"`
	Compiled  json.RawMessage `json:"compiled"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <document>",
		Short: "Compile a query document for one backend",
		Long: `Compile the query in a YAML, JSON or CUE document into the native
request of one backend.

Exits 1 when the backend cannot express the query.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "target backend (cassandra|couchdb|solr|mongodb|n1ql|dynamodb|sqlite)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled request as canonical JSON to this file")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "compile a delete over the document's entity and condition")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	kind, err := backend.ParseKind(opts.Backend)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUnknownBackend, err)
	}

	doc, err := LoadDocument(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Loaded %s: entity %s", path, doc.Entity)

	compiled, err := compileDocument(backend.NewCompilers(cfg.Backends, nil), kind, doc, opts.Delete)
	if err != nil {
		logger.Debug("compile failed", "backend", kind.String(), "entity", doc.Entity, "error", err)
		if queryir.IsUnsupported(err) {
			return formatter.Fail(ExitFailure, ErrCodeUnsupported, err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeInvalidDocument, err)
	}

	rendered, err := backend.Render(compiled)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	data, err := backend.RenderJSON(compiled)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	logger.Debug("compiled", "backend", kind.String(), "entity", doc.Entity, "statement", rendered.Text)

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Errorf("writing output file: %w", err))
		}
	}

	if formatter.JSON() {
		return formatter.Success(CompileResult{
			Backend:   kind.String(),
			Entity:    doc.Entity,
			Statement: rendered.Text,
			Compiled:  data,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %s for %s\n\n%s\n", doc.Entity, kind, rendered.Text)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote compiled request to %s\n", opts.Output)
	}
	return nil
}

// compileDocument builds the document's query, or its delete form, and
// compiles it for kind.
func compileDocument(c *backend.Compilers, kind backend.Kind, doc *querydoc.Document, del bool) (any, error) {
	if del {
		d, err := doc.Delete()
		if err != nil {
			return nil, err
		}
		return c.CompileDelete(kind, d)
	}
	q, err := doc.Query()
	if err != nil {
		return nil, err
	}
	return c.Compile(kind, q)
}
