package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benvon/smart-voice/internal/database"
)

// NewContextCmd creates the context command for inspecting a user's live
// context document.
func NewContextCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show or reset a user's context document",
	}
	cmd.PersistentFlags().StringVar(&user, "user", "", "User ID (required)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current context document",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(user)
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, db *database.DB) error {
				doc, err := database.NewContextDocumentRepository(db).GetContextDocument(ctx, userID)
				if errors.Is(err, sql.ErrNoRows) {
					fmt.Println("No context document; one is built on the next voice note.")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("Updated: %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
				if doc.SourceRecordingID != nil {
					fmt.Printf("Recording: %s\n", *doc.SourceRecordingID)
				}
				fmt.Println()
				fmt.Println(doc.Content)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Delete the context document",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(user)
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, db *database.DB) error {
				err := database.NewContextDocumentRepository(db).DeleteContextDocument(ctx, userID)
				if errors.Is(err, sql.ErrNoRows) {
					fmt.Println("No context document to delete.")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Println("Context document deleted.")
				return nil
			})
		},
	})
	return cmd
}
