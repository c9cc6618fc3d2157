package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/platform/logger"
	"schemaregistry/internal/projector"
	projectorstore "schemaregistry/internal/projector/store"
)

func newRebuildCmd() *cobra.Command {
	var batch int
	var verbose bool
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Replay every event into the read model",
		Long: `Replay the whole event feed into the projection tables. Tables are created
as definitions activate, existing rows are kept, and updates only move rows
forward, so a rebuild over a live read model is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			level := "warn"
			if verbose {
				level = "debug"
			}
			p := projector.New("rebuild", projectorstore.NewPostgres(pool), projector.NewMemoryOffsets(),
				projector.WithLogger(logger.NewWithWriter(cmd.ErrOrStderr(), level, "text")),
			)
			n, err := p.Catchup(ctx, eventstore.NewPostgres(pool), batch)
			if err != nil {
				return fmt.Errorf("rebuild stopped after %d events: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events\n", n)
			if err := p.Health(ctx); err != nil {
				for id, reason := range p.Parked() {
					fmt.Fprintf(cmd.OutOrStdout(), "skipped definition %s: %v\n", id, reason)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 500, "events read per page")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every applied event")
	return cmd
}
