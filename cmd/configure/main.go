package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benvon/smart-voice/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "smart-voice-configure",
		Short: "Administration tool for the Smart Voice API",
		Long:  "CLI tool for rate limits, schema migration, OIDC checks and inspecting per-user pipeline state",
	}

	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewOIDCCmd())
	rootCmd.AddCommand(commands.NewContextCmd())
	rootCmd.AddCommand(commands.NewPatternsCmd())
	rootCmd.AddCommand(commands.NewProcessCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
