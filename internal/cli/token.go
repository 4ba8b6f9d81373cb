package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"quiz-gateway/internal/auth"
	"quiz-gateway/internal/config"
	redisinfra "quiz-gateway/internal/infra/redis"
)

// NewIssueTokenCmd records a fresh session for a user in redis and prints a signed token for it.
func NewIssueTokenCmd(configPath *string) *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Start a session for a user and print its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("REDIS_ADDR is required: sessions live in the shared store")
			}
			client := newRedisClient(cfg)
			defer client.Close()

			issuer := auth.NewIssuer(cfg.Auth.JWTSecret, redisinfra.NewKVStore(client), config.TTLDuration(cfg.Auth.SessionTTL, 24*time.Hour))
			token, sessionID, err := issuer.Issue(cmd.Context(), userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session: %s\ntoken: %s\n", sessionID, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id to log in")
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
