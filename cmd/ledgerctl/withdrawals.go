package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tipbot/ledger/internal/domain"
)

func newWithdrawalsCmd(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdrawals",
		Short: "Inspect and reconcile withdrawals with an unknown outcome",
	}
	cmd.AddCommand(newWithdrawalsListCmd(cfg), newWithdrawalsResolveCmd(cfg))
	return cmd
}

func newWithdrawalsListCmd(cfg *cliConfig) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending and unknown withdrawal intents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cleanup, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			intents, err := engine.ListUnresolvedWithdrawals(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(intents) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no unresolved withdrawals")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tACCOUNT\tHASH\tADDRESS\tAMOUNT\tSTATUS\tHELD\tCREATED")
			for _, i := range intents {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
					i.ID, i.AccountID, i.Hash, i.Address,
					domain.FormatAmount(i.Amount), i.Status, i.Held,
					i.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows to show")
	return cmd
}

func newWithdrawalsResolveCmd(cfg *cliConfig) *cobra.Command {
	var settled, refund, apiStopped bool

	cmd := &cobra.Command{
		Use:   "resolve <intent-id>",
		Short: "Close a withdrawal after checking the network",
		Long: "Close a withdrawal intent whose outcome is unknown. Use --settled when the payment " +
			"reached the network and --refund when it did not; held funds are returned on refund.\n\n" +
			"Pending intents are refused because a gateway call may still be running. The command " +
			"takes the same account lock as the API, so REDIS_URL must point at the API's Redis. " +
			"Without it, pass --api-stopped to confirm no API instance is running.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid intent id %q: %w", args[0], err)
			}
			if err := requireSharedLock(cfg, apiStopped); err != nil {
				return err
			}

			engine, cleanup, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			intent, err := engine.ResolveWithdrawal(cmd.Context(), id, settled)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "withdrawal %s is now %s\n", intent.ID, intent.Status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&settled, "settled", false, "the payment reached the network")
	cmd.Flags().BoolVar(&refund, "refund", false, "the payment did not reach the network")
	cmd.MarkFlagsMutuallyExclusive("settled", "refund")
	cmd.Flags().BoolVar(&apiStopped, "api-stopped", false, "resolve without REDIS_URL; no API instance may be running")
	cmd.MarkFlagsOneRequired("settled", "refund")
	return cmd
}

// requireSharedLock refuses to mutate intents under a process-local lock
// while an API instance could be settling the same account.
func requireSharedLock(cfg *cliConfig, apiStopped bool) error {
	if cfg.RedisURL == "" && !apiStopped {
		return fmt.Errorf("REDIS_URL is required to share the API's account lock; pass --api-stopped if no API instance is running")
	}
	return nil
}
