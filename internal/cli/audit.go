package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/orcado/internal/core"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit  int
		offset int
		csv    bool
	)

	cmd := &cobra.Command{
		Use:           "audit",
		Short:         "List the audit log, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newOutput(rootOpts, cmd.OutOrStdout())
			ctx := cmd.Context()

			app, err := openApp(ctx, rootOpts)
			if err != nil {
				return out.failure(GetExitCode(err), err, nil)
			}
			defer app.Close()

			filter := core.AuditFilter{Limit: limit, Offset: offset}
			if csv {
				if err := app.Service.Audit().ExportCSV(ctx, out.w, filter); err != nil {
					return out.failure(ExitFailure, err, nil)
				}
				return nil
			}

			records, err := app.Service.Audit().List(ctx, filter)
			if err != nil {
				return out.failure(ExitFailure, err, nil)
			}
			return out.success(records, func(w io.Writer) { printAudit(w, records) })
		},
	}

	cmd.Flags().IntVar(&limit, "limit", core.DefaultAuditLimit, "maximum records listed")
	cmd.Flags().IntVar(&offset, "offset", 0, "records skipped")
	cmd.Flags().BoolVar(&csv, "csv", false, "write the records as CSV")
	return cmd
}

func printAudit(w io.Writer, records []core.AuditRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATA\tUSUARIO\tACTION\tVERSAO\tSTATUS\tREGISTROS\tARQUIVO")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID,
			r.DataImportacao.Format("2006-01-02 15:04:05"),
			r.Usuario,
			r.Detalhes.Action,
			r.Detalhes.Versao,
			r.Status,
			r.TotalRegistros,
			r.ArquivoOrigem,
		)
	}
	tw.Flush()
}
