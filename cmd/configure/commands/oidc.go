package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/smart-voice/internal/config"
	"github.com/benvon/smart-voice/internal/services/oidc"
)

// NewOIDCCmd creates the oidc command.
func NewOIDCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oidc",
		Short: "Inspect the OIDC token verification setup",
	}
	cmd.AddCommand(newOIDCTestCmd())
	return cmd
}

func newOIDCTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the configured issuer and JWKS are reachable",
		Long:  "Resolves the JWKS URL from OIDC_JWKS_URL or the issuer's discovery document and fetches the key set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := cmd.Context()

			if cfg.OIDCIssuer != "" {
				fmt.Printf("Issuer: %s\n", cfg.OIDCIssuer)
				if cfg.OIDCJWKSURL == "" {
					d, err := oidc.Discover(ctx, cfg.OIDCIssuer)
					if err != nil {
						return err
					}
					fmt.Printf("✓ Discovery document advertises issuer %s\n", d.Issuer)
					if d.Issuer != cfg.OIDCIssuer {
						fmt.Println("! Advertised issuer differs from OIDC_ISSUER; tokens will fail the iss check")
					}
				}
			}

			jwksURL, err := oidc.ResolveJWKSURL(ctx, cfg.OIDCIssuer, cfg.OIDCJWKSURL)
			if err != nil {
				return err
			}
			fmt.Printf("JWKS URL: %s\n", jwksURL)
			set, err := oidc.NewJWKSManager(time.Minute).GetJWKS(ctx, jwksURL)
			if err != nil {
				return err
			}
			fmt.Printf("✓ JWKS endpoint returned %d keys\n", set.Len())
			if cfg.OIDCAudience == "" {
				fmt.Println("! OIDC_AUDIENCE is unset; the aud claim is not checked")
			}
			fmt.Println("\n✓ OIDC configuration test passed")
			return nil
		},
	}
}
