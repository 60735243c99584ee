package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/orcado/internal/core"
	"github.com/JonMunkholm/orcado/internal/ingest"
)

// ValidationResult is the validate command payload.
type ValidationResult struct {
	File      string            `json:"file"`
	Accepted  bool              `json:"accepted"`
	Encoding  string            `json:"encoding"`
	Delimiter string            `json:"delimiter"`
	Rows      int               `json:"rows"`
	Versions  []string          `json:"versions,omitempty"`
	Total     string            `json:"total"`
	Errors    []core.FieldError `json:"errors,omitempty"`
}

type readOptions struct {
	delimiter string
	workers   int
}

func (o *readOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.delimiter, "delimiter", "", "field delimiter, sniffed from the header when empty")
	cmd.Flags().IntVar(&o.workers, "workers", 0, "validation workers, 0 means one per CPU")
}

func (o *readOptions) ingest() (ingest.Options, error) {
	var opts ingest.Options
	switch r := []rune(o.delimiter); len(r) {
	case 0:
	case 1:
		opts.Delimiter = r[0]
	default:
		return opts, fmt.Errorf("delimiter must be a single character, got %q", o.delimiter)
	}
	return opts, nil
}

// NewValidateCommand creates the validate command. It needs no warehouse.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	ro := &readOptions{}
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a budget CSV without writing anything",
		Long: `Validate reads the file, normalizes every row and reports every error.
Nothing is written to the warehouse or the snapshot store.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, ro, args[0])
		},
	}
	ro.bind(cmd)
	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, ro *readOptions, path string) error {
	out := newOutput(rootOpts, cmd.OutOrStdout())

	opts, err := ro.ingest()
	if err != nil {
		return out.failure(ExitCommandError, err, nil)
	}
	raw, info, err := ingest.ReadFile(path, opts)
	if err != nil {
		return out.failure(ExitCommandError, err, nil)
	}

	ds, err := core.NewValidator(ro.workers).Validate(cmd.Context(), raw)
	if err != nil {
		return out.failure(ExitFailure, err, nil)
	}

	result := ValidationResult{
		File:      raw.SourceFile,
		Accepted:  ds.Accepted(),
		Encoding:  info.Encoding,
		Delimiter: string(info.Delimiter),
		Rows:      len(ds.Rows),
		Versions:  ds.Versions(),
		Total:     core.FormatBRL(ds.TotalValor()),
		Errors:    ds.Errors,
	}

	if !result.Accepted {
		if !out.json() {
			printFieldErrors(out.w, ds.Errors)
		}
		return out.failure(ExitFailure, fmt.Errorf("%w: %d errors", core.ErrDatasetRejected, len(ds.Errors)), result)
	}

	return out.success(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s: OK\n", result.File)
		fmt.Fprintf(w, "  rows:      %d\n", result.Rows)
		fmt.Fprintf(w, "  versions:  %v\n", result.Versions)
		fmt.Fprintf(w, "  total:     %s\n", result.Total)
		fmt.Fprintf(w, "  encoding:  %s, delimiter %q\n", result.Encoding, result.Delimiter)
	})
}

// printFieldErrors lists every error with its spreadsheet line.
func printFieldErrors(w io.Writer, errs []core.FieldError) {
	fmt.Fprintf(w, "%d errors:\n", len(errs))
	for _, e := range errs {
		if line := e.Line(); line > 0 {
			fmt.Fprintf(w, "  line %d  %-15s %q: %s\n", line, e.Field, e.RawValue, e.Message)
		} else {
			fmt.Fprintf(w, "  %-15s %s\n", e.Field, e.Message)
		}
	}
}
