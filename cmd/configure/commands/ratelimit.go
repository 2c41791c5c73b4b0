package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benvon/smart-voice/internal/database"
	"github.com/benvon/smart-voice/internal/models"
)

// NewRatelimitCmd creates the ratelimit command with list, get and set subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit configuration",
		Long:  "List or update per-scope rate limits (e.g. 5-S, 100-M). Scopes: api, voice. Running servers pick up changes on their next reload.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitGetCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	return cmd
}

func parseScope(s string) (models.RatelimitScope, error) {
	scope := models.RatelimitScope(strings.ToLower(strings.TrimSpace(s)))
	if !scope.Valid() {
		return "", fmt.Errorf("unknown scope %q (want %s or %s)", s, models.RatelimitScopeAPI, models.RatelimitScopeVoice)
	}
	return scope, nil
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rate limits for every scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *database.DB) error {
				configs, err := database.NewRatelimitConfigRepository(db).List(ctx)
				if err != nil {
					return fmt.Errorf("list ratelimit config: %w", err)
				}
				if len(configs) == 0 {
					fmt.Println("No rate limit configuration in database; servers use their defaults.")
					return nil
				}
				fmt.Println("Rate limit configuration:")
				for _, c := range configs {
					fmt.Printf("  %-6s %s (updated %s)\n", c.Scope, c.Rate, c.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
}

func newRatelimitGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <scope>",
		Short: "Show the rate limit for one scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(args[0])
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, db *database.DB) error {
				c, err := database.NewRatelimitConfigRepository(db).Get(ctx, scope)
				if err != nil {
					return fmt.Errorf("get ratelimit config: %w", err)
				}
				if c == nil {
					fmt.Printf("No rate limit stored for %s; the server default applies.\n", scope)
					return nil
				}
				fmt.Printf("%s: %s\n", c.Scope, c.Rate)
				return nil
			})
		},
	}
}

func newRatelimitSetCmd() *cobra.Command {
	var rate string
	cmd := &cobra.Command{
		Use:   "set <scope>",
		Short: "Set the rate limit for one scope",
		Long:  "Update a scope's rate limit (e.g. 5-S, 100-M, 1000-H). Stored in database.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(args[0])
			if err != nil {
				return err
			}
			rate = strings.TrimSpace(rate)
			if rate == "" {
				return fmt.Errorf("--rate is required (e.g. 5-S, 100-M)")
			}
			return withDB(cmd, func(ctx context.Context, db *database.DB) error {
				if err := database.NewRatelimitConfigRepository(db).Set(ctx, &models.RatelimitConfig{Scope: scope, Rate: rate}); err != nil {
					return fmt.Errorf("set ratelimit config: %w", err)
				}
				fmt.Printf("Rate limit for %s updated to %s.\n", scope, rate)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 5-S, 100-M, 1000-H) (required)")
	return cmd
}
