package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"atelier/pkg/auth"
)

// newTokenCommand mints a token signed with the server's secret. There is no
// login flow, so this is how a developer gets a bearer token.
func (a *app) newTokenCommand() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := a.v.GetString(keyJWTSecret)
			if secret == "" {
				return errors.New("jwt secret not set; pass --jwt-secret or ATELIER_JWT_SECRET")
			}
			issuer, err := auth.NewJWTIssuer(auth.JWTConfig{
				SecretKey: secret,
				Issuer:    a.v.GetString(keyJWTIssuer),
				TTL:       ttl,
			})
			if err != nil {
				return err
			}
			token, err := issuer.IssueToken(userID, email, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "dev-user", "subject of the token")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().String(keyJWTSecret, "", "HMAC secret shared with the server (JWT_SECRET)")
	cmd.Flags().String(keyJWTIssuer, "atelier", "issuer expected by the server (JWT_ISSUER)")
	return cmd
}
