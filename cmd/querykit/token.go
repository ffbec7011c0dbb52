package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"listquery/internal/middleware"
)

// tokenOptions holds flags for the token command.
type tokenOptions struct {
	Secret     string
	SecretFile string
	Issuer     string
	Audience   string
	Subject    string
	Role       string
	RoleClaim  string
	Expires    time.Duration
}

func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HMAC bearer token for a server running with JWT auth",
		Long: `Mint an HS256 token accepted by the server's shared-secret JWT authentication.
The role claim selects the restriction policy applied to the caller.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signed, err := mintToken(opts, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "shared HMAC secret")
	cmd.Flags().StringVar(&opts.SecretFile, "secret-file", "", "file holding the shared HMAC secret")
	cmd.Flags().StringVar(&opts.Issuer, "issuer", "", "iss claim")
	cmd.Flags().StringVar(&opts.Audience, "audience", "listquery", "aud claim")
	cmd.Flags().StringVar(&opts.Subject, "subject", "querykit", "sub claim")
	cmd.Flags().StringVar(&opts.Role, "role", "", "caller role")
	cmd.Flags().StringVar(&opts.RoleClaim, "role-claim", middleware.DefaultRoleClaim, "claim carrying the role")
	cmd.Flags().DurationVar(&opts.Expires, "expires", time.Hour, "token lifetime")
	cmd.MarkFlagsMutuallyExclusive("secret", "secret-file")

	return cmd
}

func mintToken(opts *tokenOptions, now time.Time) (string, error) {
	secret := opts.Secret
	if opts.SecretFile != "" {
		data, err := os.ReadFile(opts.SecretFile)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		secret = string(data)
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("a secret is required (--secret or --secret-file)")
	}
	if opts.Expires <= 0 {
		return "", fmt.Errorf("invalid lifetime %s: must be positive", opts.Expires)
	}

	claims := jwt.MapClaims{
		"sub": opts.Subject,
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(opts.Expires).Unix(),
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	if opts.Role != "" {
		claim := opts.RoleClaim
		if claim == "" {
			claim = middleware.DefaultRoleClaim
		}
		claims[claim] = opts.Role
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
