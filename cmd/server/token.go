package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/StudyRoom/internal/adapters/auth"
	"github.com/dkeye/StudyRoom/internal/domain"
)

// tokenCmd mints a signaling token without going through the account API,
// for load tests and local debugging.
func tokenCmd() *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Print a signed access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if name == "" {
				name = args[0]
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			display, err := domain.NormalizeDisplayName(name)
			if err != nil {
				return err
			}
			tok, err := auth.NewJWT(cfg.Auth.JWTSecret).Sign(domain.Identity{UserID: domain.UserID(args[0]), DisplayName: display}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the user id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}
