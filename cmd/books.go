package main

import (
	"github.com/spf13/cobra"

	"github.com/Akphawee/accessible-library/internal/helper"
	"github.com/Akphawee/accessible-library/internal/library"
)

var (
	ingestCategory string
	ingestName     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Add a book to the library and index it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			job, err := a.svc.Ingest(ctx, library.IngestRequest{
				SourcePath:  args[0],
				CategoryID:  ingestCategory,
				DisplayName: ingestName,
			})
			if err != nil {
				return err
			}
			return waitJob(ctx, job)
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <book-id>",
	Short: "Re-extract every page of a PDF book with OCR",
	Long: `scan runs OCR on every page of a book's source PDF, replaces its text and
index, and drops its summaries, question banks and cached answers. The source
file is removed once every page was recognized. Only one scan runs at a time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			job, err := a.svc.Scan(ctx, args[0])
			if err != nil {
				return err
			}
			return waitJob(ctx, job)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <book-id>",
	Short: "Remove a book and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			return a.svc.Delete(ctx, args[0])
		})
	},
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List books and categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			books, categories, err := a.svc.Library()
			if err != nil {
				return err
			}
			helper.PrettyPrint(map[string]any{"books": books, "categories": categories})
			return nil
		})
	},
}

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Edit catalog entries",
}

var bookRenameCmd = &cobra.Command{
	Use:   "rename <book-id> <display-name>",
	Short: "Change the display name of a book",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			book, err := a.svc.RenameBook(args[0], args[1])
			if err != nil {
				return err
			}
			helper.PrettyPrint(book)
			return nil
		})
	},
}

var bookMoveCmd = &cobra.Command{
	Use:   "move <book-id> <category-id>",
	Short: "Move a book to another category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			book, err := a.svc.MoveBook(args[0], args[1])
			if err != nil {
				return err
			}
			helper.PrettyPrint(book)
			return nil
		})
	},
}

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			category, err := a.svc.AddCategory(args[0])
			if err != nil {
				return err
			}
			helper.PrettyPrint(category)
			return nil
		})
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <category-id>",
	Short: "Delete a category, moving its books to the default category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			moved, err := a.svc.DeleteCategory(args[0])
			if err != nil {
				return err
			}
			helper.PrettyPrint(map[string]any{"deleted": args[0], "moved_books": moved})
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "category id (default: uncategorized)")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "display name (default: file name)")

	bookCmd.AddCommand(bookRenameCmd, bookMoveCmd)
	categoryCmd.AddCommand(categoryAddCmd, categoryDeleteCmd)
}
