package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/code-payments/flipchat-iapkit/iap"
)

var outcome string

var purchaseCmd = &cobra.Command{
	Use:   "purchase <product-id>",
	Short: "Purchase a product and print the resulting entitlements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseOutcome(outcome)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, log, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.reconciler.FetchAvailableProducts(ctx, args[0]); err != nil {
			return err
		}

		products := a.reconciler.AvailableProducts().Value()
		if len(products) == 0 {
			return fmt.Errorf("product %s not found", args[0])
		}

		a.platform.SetPurchaseOutcome(products[0].ID, kind)
		if err := a.reconciler.Purchase(ctx, products[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", kind)
		fmt.Fprintf(cmd.OutOrStdout(), "entitlements: %s\n", formatSet(a.reconciler.UserEntitlements().Value()))
		return nil
	},
}

func init() {
	purchaseCmd.Flags().StringVar(&outcome, "outcome", iap.OutcomeVerified.String(), "simulated outcome: verified, unverified, pending or user_cancelled")
}

func parseOutcome(s string) (iap.OutcomeKind, error) {
	for _, kind := range []iap.OutcomeKind{
		iap.OutcomeVerified,
		iap.OutcomeUnverified,
		iap.OutcomePending,
		iap.OutcomeUserCancelled,
	} {
		if kind.String() == s {
			return kind, nil
		}
	}
	return iap.OutcomeUnknown, fmt.Errorf("unknown outcome %q", s)
}
