package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
	"github.com/roach88/polystore/internal/store"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	DBPath string // SQLite database path
	Delete bool   // delete matches instead of selecting them
}

// ExecResult is the JSON payload of a successful exec.
type ExecResult struct {
	Entity   string            `json:"entity"`
	Inserted int               `json:"inserted"`
	Deleted  *int64            `json:"deleted,omitempty"`
	Entities []json.RawMessage `json:"entities,omitempty"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <document>",
		Short: "Run a query document against a SQLite store",
		Long: `Write the document's insert entities to a SQLite store, then run its
query and print every match as canonical JSON. With --delete the matches
are removed instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (defaults to store.path from config)")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete matching entities instead of selecting them")

	return cmd
}

func runExec(opts *ExecOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	cfg, logger, err := opts.settings(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	doc, err := LoadDocument(path)
	if err != nil {
		return loadFailure(formatter, err)
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	formatter.VerboseLog("Opening store at %s", dbPath)

	st, err := store.Open(dbPath,
		store.WithConfig(cfg.Backends.SQLite),
		store.WithLogger(logger),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	defer st.Close()

	result := ExecResult{Entity: doc.Entity, Inserted: len(doc.Insert)}
	if len(doc.Insert) > 0 {
		if err := st.Insert(ctx, doc.Insert...); err != nil {
			return execFailure(formatter, err)
		}
		formatter.VerboseLog("Inserted %d entity(ies)", len(doc.Insert))
	}

	if opts.Delete {
		d, err := doc.Delete()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidDocument, err)
		}
		n, err := st.Delete(ctx, d)
		if err != nil {
			return execFailure(formatter, err)
		}
		result.Deleted = &n
	} else {
		q, err := doc.Query()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidDocument, err)
		}
		res, err := st.Select(ctx, q)
		if err != nil {
			return execFailure(formatter, err)
		}
		codec := ir.NewCodec(nil)
		result.Entities = make([]json.RawMessage, 0, len(res.Entities))
		for _, e := range res.Entities {
			native, err := codec.ToNative(e)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
			}
			data, err := ir.MarshalCanonical(native)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
			}
			result.Entities = append(result.Entities, data)
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	if result.Inserted > 0 {
		fmt.Fprintf(formatter.Writer, "✓ Inserted %d %s\n", result.Inserted, doc.Entity)
	}
	if result.Deleted != nil {
		fmt.Fprintf(formatter.Writer, "✓ Deleted %d %s\n", *result.Deleted, doc.Entity)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "✓ %d %s matched\n", len(result.Entities), doc.Entity)
	for _, e := range result.Entities {
		fmt.Fprintf(formatter.Writer, "%s\n", e)
	}
	return nil
}

// execFailure maps a store error to an exit code: a query the store cannot
// express is a failure, anything else a command error.
func execFailure(formatter *OutputFormatter, err error) error {
	if queryir.IsUnsupported(err) {
		return formatter.Fail(ExitFailure, ErrCodeUnsupported, err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeStore, err)
}
