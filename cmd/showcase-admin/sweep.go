package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/prn-tf/showcase-portal/internal/app"
	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/service"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var (
		olderThan time.Duration
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile stored blobs with the reference ledger",
		Long: `Reclaim orphaned blobs older than --older-than, remove ledger entries
naming missing blobs and delete stored content no blob row describes.
Defaults to the configured grace period.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}

			return withApp(cmd.Context(), opts, func(a *app.App) error {
				age := a.Config.Reclaim.GracePeriod
				if cmd.Flags().Changed("older-than") {
					age = olderThan
				}

				result, err := a.Reclaim.Sweep(cmd.Context(), service.SweepOptions{
					OlderThan: age,
					DryRun:    dryRun,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.jsonOutput {
					return writeJSON(out, result)
				}

				prefix := ""
				if result.DryRun {
					prefix = "dry run: "
				}
				return writePlain(out,
					"%sreclaimed %d blobs (%s), repaired %d references, removed %d stray objects, skipped %d, errors %d in %s\n",
					prefix,
					result.BlobsDeleted,
					humanize.Bytes(uint64(result.BytesFreed)),
					result.ReferencesRepaired,
					result.StrayContentRemoved,
					result.Skipped,
					result.Errors,
					result.Duration.Round(time.Millisecond),
				)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only reclaim blobs created at least this long ago")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count what would change without deleting")
	return cmd
}

func newReclaimCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim <blob-id>",
		Short: "Delete a blob now if nothing references it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseBlobID(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app.App) error {
				deleted, err := a.Reclaim.ReclaimIfOrphaned(cmd.Context(), id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.jsonOutput {
					return writeJSON(out, map[string]any{"blobId": id, "deleted": deleted})
				}
				if deleted {
					return writePlain(out, "reclaimed %s\n", id)
				}
				return writePlain(out, "kept %s (referenced or already gone)\n", id)
			})
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show blob store and ledger statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				stats, err := a.Reclaim.Stats(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.jsonOutput {
					return writeJSON(out, stats)
				}
				return writePlain(out,
					"blobs:            %s (%s)\norphans:          %s older than %s\nstale references: %s\nsweep running:    %t\n",
					humanize.Comma(stats.TotalBlobs),
					humanize.Bytes(uint64(stats.TotalSize)),
					humanize.Comma(stats.OrphanBlobs),
					stats.GracePeriod,
					humanize.Comma(stats.StaleReferences),
					stats.SweepRunning,
				)
			})
		},
	}
}
