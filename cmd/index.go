package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fyerfyer/advisor-rag/config"
	"github.com/fyerfyer/advisor-rag/internal/vectordb"
	"github.com/spf13/cobra"
)

func newIndexCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the vector index",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Load the corpus, embed it and write a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, appOptions{needIndex: true, persistIndex: true})
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.buildIndex(cmd.Context())
			if err != nil {
				return err
			}
			status := a.indexer.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks (%d failed) with %s on %s, checkpoint reused: %t\n",
				stats.Chunks, stats.Failed, stats.Model, stats.Backend, status.FromCache)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the stored index checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Index.CheckpointDir == "" {
				return errors.New("index.checkpoint_dir is not configured")
			}

			cp, err := vectordb.LoadCheckpoint(cfg.Index.CheckpointDir)
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "No checkpoint found, run `index build` first")
				return nil
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"key":        cp.Key,
				"model":      cp.Model,
				"dimension":  cp.Dimension,
				"chunks":     len(cp.Entries),
				"created_at": cp.CreatedAt,
			})
		},
	})

	return cmd
}
