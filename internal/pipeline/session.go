package pipeline

import (
	"context"

	"cadio-client/internal/common/auth"
	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/config"
	"cadio-client/internal/common/credentials"
	cadiohttp "cadio-client/internal/common/http"
	"cadio-client/internal/common/logger"
)

// Connect acquires a token for creds and returns a Design Automation client whose
// requests carry it. cache may be nil.
func Connect(ctx context.Context, cfg *config.Config, creds *credentials.Set, cache auth.TokenCache, log logger.Logger) (*autocadio.Client, error) {
	return authorize(ctx, cfg, newTokenClient(cfg, creds, cache, log))
}

func newTokenClient(cfg *config.Config, creds *credentials.Set, cache auth.TokenCache, log logger.Logger) *auth.TokenClient {
	opts := []auth.Option{
		auth.WithLogger(log),
		auth.WithHTTPClient(cadiohttp.NewClient(config.GetDuration(cfg.AutocadIO.Timeout)).HTTPClient()),
	}
	if cache != nil {
		opts = append(opts, auth.WithCache(cache))
	}
	return auth.NewTokenClient(cfg.AutocadIO.TokenURL, creds.ForgeClientID, creds.ForgeClientSecret, cfg.AutocadIO.Scope, opts...)
}

// authorize builds a client around the token tokens currently holds, fetching one if needed.
func authorize(ctx context.Context, cfg *config.Config, tokens *auth.TokenClient) (*autocadio.Client, error) {
	header, err := tokens.AcquireToken(ctx)
	if err != nil {
		return nil, err
	}

	session := cadiohttp.NewAuthenticatedClient(config.GetDuration(cfg.AutocadIO.Timeout), header)
	return autocadio.NewClient(cfg.AutocadIO.BaseURL, session), nil
}
