package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/todmy/docguard/internal/auth"
)

var (
	tokenUser  string
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token signed with JWT_SECRET",
	Long: `Prints a bearer token for the HTTP API. The user ID is recorded as
resolved_by on every resolution applied with the token.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User ID placed in the token (required)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email placed in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultConfig().TokenDuration, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	authCfg := auth.DefaultConfig()
	authCfg.SecretKey = cfg.JWTSecret
	authCfg.TokenDuration = tokenTTL

	verifier, err := auth.NewVerifier(authCfg)
	if err != nil {
		return err
	}
	token, err := verifier.IssueToken(tokenUser, tokenEmail)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
