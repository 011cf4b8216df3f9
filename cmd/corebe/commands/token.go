package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/walkabout/corebe/internal/app"
	"github.com/walkabout/corebe/internal/oauth2client"
	"github.com/walkabout/corebe/internal/observability"
)

// tokenInfo is what the token command prints. The token value is only
// included on request.
type tokenInfo struct {
	Resource    string     `json:"resource"`
	TokenType   string     `json:"token_type,omitempty"`
	Scopes      []string   `json:"scopes,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ExpiresIn   int64      `json:"expires_in,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
}

func newTokenInfo(resourceID string, token *oauth2client.AccessToken, show bool) tokenInfo {
	info := tokenInfo{
		Resource:  resourceID,
		TokenType: token.TokenType,
		Scopes:    token.Scopes,
	}
	if !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt.UTC()
		info.ExpiresAt = &expiresAt
		info.ExpiresIn = token.ExpiresIn()
	}
	if show {
		info.AccessToken = token.Value
	}
	return info
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "acquire an access token and print its metadata",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "show",
				Usage: "include the token value in the output",
			},
			&cli.StringFlag{
				Name:  "resource--client-id",
				Usage: "OAuth2 client id",
			},
		},
		Action: tokenAction,
	}
}

func tokenAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs go to stderr, stdout carries the token only
	if _, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), observability.ExporterNone); err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	token, err := application.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire token: %w", err)
	}
	slog.DebugContext(ctx, "token acquired", "resource", cfg.Resource.ID)

	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(newTokenInfo(cfg.Resource.ID, token, cmd.Bool("show")))
}
