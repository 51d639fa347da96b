package main

import (
	"fmt"

	"github.com/fyerfyer/advisor-rag/internal/services"
	"github.com/spf13/cobra"
)

func newExportCmd(configPath *string) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Append archived conversations to a CSV spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, appOptions{needDatabase: true})
			if err != nil {
				return err
			}
			defer a.Close()

			convs, err := a.archiver.List(cmd.Context())
			if err != nil {
				return err
			}
			if err := services.ExportFile(out, convs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d conversations to %s\n", len(convs), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "data/conversations.csv", "CSV file to append to")
	return cmd
}
