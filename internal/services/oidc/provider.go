// Package oidc verifies bearer tokens issued by an OpenID Connect provider.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discovery is the subset of the provider metadata document we use.
type Discovery struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// Discover fetches the provider metadata for issuer.
func Discover(ctx context.Context, issuer string) (*Discovery, error) {
	discoveryURL := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var d Discovery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if d.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document for %s has no jwks_uri", issuer)
	}
	return &d, nil
}

// ResolveJWKSURL returns jwksURL when set, otherwise the one advertised by issuer.
func ResolveJWKSURL(ctx context.Context, issuer, jwksURL string) (string, error) {
	if jwksURL != "" {
		return jwksURL, nil
	}
	d, err := Discover(ctx, issuer)
	if err != nil {
		return "", err
	}
	return d.JWKSURI, nil
}
