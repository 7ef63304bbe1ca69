package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/runtime"
	"github.com/R3E-Network/yield_ledger/internal/middleware"
)

var tokenTTL time.Duration

// tokenCmd signs a caller token with the configured secret
var tokenCmd = &cobra.Command{
	Use:   "token <principal>",
	Short: "Issue a caller token for local use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := runtime.ParseSecret(cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
		if len(secret) == 0 {
			return errors.New("auth.jwt_secret is not set")
		}
		p, err := vault.ParsePrincipal(args[0])
		if err != nil {
			return err
		}
		now := time.Now()
		token, err := middleware.IssueToken(string(secret), p, jwt.RegisteredClaims{
			Subject:   string(p),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
