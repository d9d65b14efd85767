package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/chore-tracker/internal/auth"
	"github.com/sakif/chore-tracker/internal/config"
	"github.com/sakif/chore-tracker/internal/notify"
	"github.com/sakif/chore-tracker/internal/server"
	"github.com/sakif/chore-tracker/internal/service"
	"github.com/sakif/chore-tracker/internal/watch"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := openDB(ctx, cfg, logger)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		db.Close()
		return fmt.Errorf("configuring tokens: %w", err)
	}

	mailer, err := newMailer(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return err
	}

	deps := server.Deps{
		Store:     db,
		Hub:       watch.NewHub(),
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(cfg.Auth.BcryptCost),
		Mailer:    mailer,
	}
	if cfg.GitHub.ClientID != "" {
		deps.GitHub = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	} else {
		logger.Info("GitHub sign-in disabled (no client id)")
	}

	srv := server.New(server.Config{
		Port:          cfg.Port,
		SecureCookies: strings.HasPrefix(cfg.Email.AppURL, "https://"),
		Family: service.FamilyOptions{
			CodeMaxAttempts: cfg.Family.CodeMaxAttempts,
			AppURL:          cfg.Email.AppURL,
		},
	}, deps, logger)

	return srv.Start(ctx)
}

// newMailer sends invites through SES when a sender address is configured
// and only logs them otherwise.
func newMailer(ctx context.Context, cfg config.Config, logger *slog.Logger) (notify.Mailer, error) {
	if cfg.Email.FromEmail == "" {
		logger.Info("invite e-mails are logged, not sent (no sender configured)")
		return notify.NewLogMailer(logger), nil
	}
	mailer, err := notify.NewSESMailer(ctx, cfg.Email.SESRegion, cfg.Email.FromEmail, cfg.Email.FromName, logger)
	if err != nil {
		return nil, fmt.Errorf("configuring SES: %w", err)
	}
	return mailer, nil
}
