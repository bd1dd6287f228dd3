package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoChromem = errors.New("index backup needs the chromem vector backend")

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Back up, restore or rebuild the vector index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild <book-id>",
	Short: "Re-embed a book from its cached pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			job, err := a.svc.Reindex(ctx, args[0])
			if err != nil {
				return err
			}
			return waitJob(ctx, job)
		})
	},
}

var indexExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the vector collection to a backup file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if a.vectors == nil {
				return errNoChromem
			}
			var file string
			if len(args) == 1 {
				file = args[0]
			}
			if err := a.vectors.Export(file); err != nil {
				return err
			}
			fmt.Printf("exported %d entries\n", a.vectors.Count())
			return nil
		})
	},
}

var indexImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore the vector collection from a backup file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if a.vectors == nil {
				return errNoChromem
			}
			if err := a.vectors.Import(args[0]); err != nil {
				return err
			}
			fmt.Printf("imported, collection now holds %d entries\n", a.vectors.Count())
			return nil
		})
	},
}

func init() {
	indexCmd.AddCommand(indexExportCmd, indexImportCmd, indexRebuildCmd)
}
