package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/uits-lms/macrovars/internal/auth"
	"github.com/uits-lms/macrovars/internal/config"
	"github.com/uits-lms/macrovars/internal/httpclient"
)

const defaultAuthRefreshLeeway = 30 * time.Second

// buildAuthProvider returns the Canvas credential provider for cfg, or nil
// when no auth is configured.
func buildAuthProvider(cfg *config.Config) (auth.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	authCfg := cfg.Auth

	refreshWindow := authCfg.RefreshBeforeExpiry
	if refreshWindow <= 0 {
		refreshWindow = defaultAuthRefreshLeeway
	}

	switch authCfg.EffectiveType() {
	case "":
		return nil, nil
	case config.AuthTypeStaticToken:
		if strings.TrimSpace(authCfg.StaticToken) == "" {
			return nil, fmt.Errorf("static token is required for %s", config.AuthTypeStaticToken)
		}
		return auth.NewStaticTokenProvider(authCfg.StaticToken), nil
	case config.AuthTypeOAuth2ClientCredentials:
		provider, err := auth.NewOAuth2ClientCredentialsProvider(
			authCfg.TokenURL,
			authCfg.ClientID,
			authCfg.ClientSecret,
			authCfg.Scopes,
			refreshWindow,
			httpclient.NewClient(cfg.Canvas.Timeout),
		)
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q", authCfg.Type)
	}
}
