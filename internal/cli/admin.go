package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// DeleteResult is the payload of the delete commands.
type DeleteResult struct {
	Target  string `json:"target"`
	Deleted int64  `json:"deleted"`
}

// NewDeleteVersionCommand creates the delete-version command.
func NewDeleteVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return newDeleteCommand(rootOpts, "delete-version <versao>",
		"Delete every record of one VERSAO partition",
		func(ctx context.Context, app appService, arg string) (int64, error) {
			return app.DeleteByVersion(ctx, arg)
		})
}

// NewDeleteFilialCommand creates the delete-filial command.
func NewDeleteFilialCommand(rootOpts *RootOptions) *cobra.Command {
	return newDeleteCommand(rootOpts, "delete-filial <filial>",
		"Delete every record of one FILIAL across all versions",
		func(ctx context.Context, app appService, arg string) (int64, error) {
			return app.DeleteByFilial(ctx, arg)
		})
}

// appService is the part of core.Service the delete commands call.
type appService interface {
	DeleteByVersion(ctx context.Context, versao string) (int64, error)
	DeleteByFilial(ctx context.Context, filial string) (int64, error)
}

func newDeleteCommand(rootOpts *RootOptions, use, short string, run func(context.Context, appService, string) (int64, error)) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newOutput(rootOpts, cmd.OutOrStdout())
			if !yes {
				return out.failure(ExitCommandError, fmt.Errorf("refusing to delete %q without --yes", args[0]), nil)
			}
			ctx := cmd.Context()

			app, err := openApp(ctx, rootOpts)
			if err != nil {
				return out.failure(GetExitCode(err), err, nil)
			}
			defer app.Close()

			n, err := run(ctx, app.Service, args[0])
			if err != nil {
				return out.failure(ExitFailure, err, nil)
			}
			res := DeleteResult{Target: args[0], Deleted: n}
			return out.success(res, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %d records (%s)\n", n, args[0])
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the delete")
	return cmd
}
