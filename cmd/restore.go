package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/code-payments/flipchat-iapkit/iap"
)

var restoreCancelled bool

var restoreCmd = &cobra.Command{
	Use:   "restore [product-id...]",
	Short: "Restore purchases and print the resulting entitlements",
	Long: `Records a purchase of each given product without telling the reconciler,
then restores purchases so they are redelivered over the live feed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, log, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if _, err := a.platform.Grant(id); err != nil {
				return err
			}
		}

		if restoreCancelled {
			a.platform.SetRestoreError(iap.ErrUserCancelled)
		}

		err = a.reconciler.RestorePurchases(cmd.Context())
		if errors.Is(err, iap.ErrRestoreCancelled) {
			fmt.Fprintln(cmd.OutOrStdout(), "restore cancelled")
			return nil
		} else if err != nil {
			return err
		}

		// Restored transactions arrive over the feed; resync so the printed set
		// does not depend on how far the feed got.
		a.reconciler.RefreshEntitlements(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "entitlements: %s\n", formatSet(a.reconciler.UserEntitlements().Value()))
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreCancelled, "cancel", false, "simulate the user dismissing the restore sheet")
}
