package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benvon/smart-voice/internal/database"
	"github.com/benvon/smart-voice/internal/models"
	"github.com/benvon/smart-voice/internal/patterns"
)

// NewPatternsCmd creates the patterns command.
func NewPatternsCmd() *cobra.Command {
	var user, patternType string
	var limit int
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List a user's learned behavioral patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(user)
			if err != nil {
				return err
			}
			pt := models.PatternType(patternType)
			if pt != "" && !pt.Valid() {
				return fmt.Errorf("unknown pattern type %q", patternType)
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			return withDB(cmd, func(ctx context.Context, db *database.DB) error {
				ps, err := database.NewPatternRepository(db).ListPatterns(ctx, userID, pt, limit)
				if err != nil {
					return err
				}
				if len(ps) == 0 {
					fmt.Println("No patterns learned yet.")
					return nil
				}
				for _, p := range ps {
					fmt.Printf("  [%-10s] %s\n", p.PatternType, patterns.Describe(p))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&patternType, "type", "", "Only list this pattern type")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum patterns to list")
	return cmd
}
