package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"turnstile/internal/web"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var subject string
	var ttlHours int

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the web API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			token, expires, err := web.MintToken(cfg, subject, time.Duration(ttlHours)*time.Hour)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintln(stdout, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "Token expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject recorded in the claims")
	cmd.Flags().IntVar(&ttlHours, "ttl", 0, "Token lifetime in hours (0 uses the configured default)")
	return cmd
}
