package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "schemaregistry/internal/jwt_token"
	"schemaregistry/internal/platform/config"
)

func newTokenCmd() *cobra.Command {
	var scopes []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token signed with AUTH_JWT_SIGNING_KEY",
		Long: `Mint a bearer token for the given subject. The subject becomes the actor
recorded on every event the token's holder causes.

Examples:
  registryctl token alice --scope definitions:write
  registryctl token clerk --scope entities:write --ttl 8h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := config.SectionFromEnv[config.Auth]("AUTH_")
			if err != nil {
				return err
			}
			if auth.SigningKey == "" {
				return errors.New("AUTH_JWT_SIGNING_KEY is required")
			}
			svc := jwttoken.NewJWTService(auth.SigningKey, auth.Issuer, auth.Audience)
			tok, err := svc.GenerateAccessToken(args[0], scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", nil,
		fmt.Sprintf("scope to grant (%s, %s)", jwttoken.ScopeDefinitionsWrite, jwttoken.ScopeEntitiesWrite))
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
