package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/orcado/internal/core"
)

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Synchronize snapshots kept while the warehouse was unreachable",
		Long: `Replay synchronizes every pending snapshot, oldest first, or the single
snapshot named by --id. Rejected and already synchronized snapshots are refused.`,
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

			if id != "" {
				jobID, err := app.Service.Replay(ctx, id)
				if err != nil {
					return out.failure(ExitFailure, err, nil)
				}
				res, err := app.Service.Jobs().Wait(ctx, jobID)
				if err != nil {
					return out.failure(ExitFailure, err, nil)
				}
				if res.Phase != core.PhaseComplete {
					return out.failure(ExitFailure, fmt.Errorf("replay %s: %s", id, res.Error), res)
				}
				return out.success(res, func(w io.Writer) { printJob(w, res) })
			}

			results, err := app.Service.ReplayPending(ctx)
			if err != nil {
				return out.failure(ExitFailure, err, results)
			}
			for _, res := range results {
				if res.Phase != core.PhaseComplete {
					return out.failure(ExitFailure, fmt.Errorf("%w: %s", core.ErrWarehouseUnavailable, res.Error), results)
				}
			}
			return out.success(results, func(w io.Writer) {
				if len(results) == 0 {
					fmt.Fprintln(w, "no pending snapshots")
					return
				}
				for _, res := range results {
					printJob(w, res)
				}
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "replay only this snapshot")
	return cmd
}

// NewSnapshotsCommand creates the snapshots command.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:           "snapshots",
		Short:         "List local snapshots",
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

			snaps, err := app.Service.Snapshots(ctx, core.SnapshotStatus(status), limit)
			if err != nil {
				return out.failure(ExitFailure, err, nil)
			}
			for i := range snaps {
				snaps[i].Dataset = core.NormalizedDataset{}
			}
			return out.success(snaps, func(w io.Writer) {
				for _, s := range snaps {
					fmt.Fprintf(w, "%s  %-9s  %-12s  %s  %s\n",
						s.ID, s.Status, s.Versao, s.CreatedAt.Format("2006-01-02 15:04:05"), s.SourceFile)
				}
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(core.SnapshotPending), "snapshot status, empty lists all")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum snapshots listed")
	return cmd
}
