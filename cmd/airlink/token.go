package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/airlink/internal/api"
	"github.com/nerrad567/airlink/internal/infrastructure/config"
)

func newTokenCmd(configPath func() string) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Print a control token for the HTTP API",
		Long: `Sign a bearer token for POST /api/v1/commands and
POST /api/v1/connection/reconnect with the configured api.auth.jwt_secret.

Example:
  AIRLINK_API_JWT_SECRET=... airlink token wall-panel --ttl 720h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			token, err := api.IssueToken(cfg.API.Auth.JWTSecret, args[0], ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
