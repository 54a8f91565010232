package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tipbot/ledger/internal/auth"
)

func newTokenCmd(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage adapter tokens",
	}

	var (
		platform string
		adapter  string
		ttl      time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token binding an adapter to one platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			if adapter == "" {
				adapter = strings.ToLower(strings.TrimSpace(platform)) + "-adapter"
			}
			token, err := auth.GenerateToken(platform, adapter, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&platform, "platform", "", "platform the adapter serves (e.g. reddit)")
	issue.Flags().StringVar(&adapter, "adapter", "", "adapter name recorded as the token subject")
	issue.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("platform")

	cmd.AddCommand(issue)
	return cmd
}
