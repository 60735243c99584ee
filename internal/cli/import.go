package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/orcado/internal/core"
	"github.com/JonMunkholm/orcado/internal/ingest"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	ro := &readOptions{}
	var operator string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a budget CSV and synchronize it into the warehouse",
		Long: `Import validates the file and, when every row is valid, synchronizes its
VERSAO partition. When the warehouse is unreachable the dataset is kept as
a local snapshot; run "orcadoctl replay" once it is back.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newOutput(rootOpts, cmd.OutOrStdout())
			opts, err := ro.ingest()
			if err != nil {
				return out.failure(ExitCommandError, err, nil)
			}
			raw, _, err := ingest.ReadFile(args[0], opts)
			if err != nil {
				return out.failure(ExitCommandError, err, nil)
			}

			ctx := cmd.Context()
			if operator != "" {
				ctx = core.ContextWithOperator(ctx, core.Operator{User: operator, UserAgent: "orcadoctl"})
			}

			app, err := openApp(ctx, rootOpts)
			if err != nil {
				return out.failure(GetExitCode(err), err, nil)
			}
			defer app.Close()

			res, err := app.Service.Import(ctx, raw)
			return reportJob(out, res, err)
		},
	}
	ro.bind(cmd)
	cmd.Flags().StringVar(&operator, "operator", os.Getenv("ORCADO_OPERATOR"), "user recorded in the audit log")
	return cmd
}

// reportJob prints a finished job.
func reportJob(out *output, res core.JobResult, err error) error {
	if err != nil {
		if errors.Is(err, core.ErrDatasetRejected) && !out.json() {
			printFieldErrors(out.w, res.Errors)
		}
		if res.JobID == "" {
			return out.failure(ExitFailure, err, nil)
		}
		return out.failure(ExitFailure, err, res)
	}
	return out.success(res, func(w io.Writer) { printJob(w, res) })
}

func printJob(w io.Writer, res core.JobResult) {
	fmt.Fprintf(w, "%s: %s (job %s)\n", res.FileName, res.Phase, res.JobID)
	if s := res.Sync; s != nil {
		fmt.Fprintf(w, "  versao:    %s\n", s.Versao)
		fmt.Fprintf(w, "  mode:      %s\n", s.Mode)
		fmt.Fprintf(w, "  inserted:  %d\n", s.Inserted)
		fmt.Fprintf(w, "  updated:   %d\n", s.Updated)
		fmt.Fprintf(w, "  deleted:   %d\n", s.Deleted)
		fmt.Fprintf(w, "  duration:  %s\n", s.Duration)
	}
	if res.SnapshotID != "" {
		fmt.Fprintf(w, "  snapshot:  %s\n", res.SnapshotID)
	}
}
