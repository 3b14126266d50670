package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqtt-inspect/internal/auth"
)

func newTokenCmd(global *globalFlags) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token",
		Long:  "token signs a bearer token for the HTTP API with api.auth.jwt_secret.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.API.Auth.JWTSecret == "" {
				return fmt.Errorf("api.auth.jwt_secret is not set; the API runs without authentication")
			}
			if ttl <= 0 {
				ttl = cfg.GetTokenTTL()
			}

			token, err := auth.GenerateToken(subject, auth.Role(role), cfg.API.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "mqttinspect", "token subject (who the token is for)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "role granted by the token (viewer or operator)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default api.auth.token_ttl minutes)")
	return cmd
}
