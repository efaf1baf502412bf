package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/code-payments/flipchat-iapkit/iap"
	"github.com/code-payments/flipchat-iapkit/iap/android"
)

var (
	grantIDs   []string
	revokeIDs  []string
	playTokens []string
	watchFor   time.Duration
)

var entitlementsCmd = &cobra.Command{
	Use:   "entitlements",
	Short: "Resync and print the user's entitlements",
	Long: `Delivers the requested grants and revocations over the live feed, runs a
full resync and prints the resulting entitlements. With --play-token the resync
reads the given purchases from Google Play instead.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tokens, err := parsePlayTokens(playTokens)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, log, tokens)
		if err != nil {
			return err
		}
		defer a.Close()

		// The printer owns the output until the watch ends. The stream is
		// closed once watchCtx is done, which ends the printer.
		printed := make(chan struct{})
		if watchFor > 0 {
			watchCtx, cancel := context.WithTimeout(cmd.Context(), watchFor)
			defer func() {
				cancel()
				<-printed
			}()

			stream := a.reconciler.UserEntitlements().Subscribe(watchCtx)
			go func() {
				defer close(printed)

				for set := range stream.Channel() {
					fmt.Fprintf(cmd.OutOrStdout(), "published: %s\n", formatSet(set))
				}
			}()
		} else {
			close(printed)
		}

		for _, id := range grantIDs {
			if _, err := a.platform.Grant(id); err != nil {
				return err
			}
		}
		for _, id := range revokeIDs {
			if _, err := a.platform.Revoke(id); err != nil {
				return err
			}
		}

		a.reconciler.RefreshEntitlements(cmd.Context())
		<-printed

		fmt.Fprintf(cmd.OutOrStdout(), "entitlements: %s\n", formatSet(a.reconciler.UserEntitlements().Value()))
		return nil
	},
}

func init() {
	entitlementsCmd.Flags().StringSliceVar(&grantIDs, "grant", nil, "product IDs to grant over the live feed")
	entitlementsCmd.Flags().StringSliceVar(&revokeIDs, "revoke", nil, "granted product IDs to revoke over the live feed")
	entitlementsCmd.Flags().StringSliceVar(&playTokens, "play-token", nil, "Google Play purchases to resync, as product-id=token")
	entitlementsCmd.Flags().DurationVar(&watchFor, "watch", 0, "keep printing published entitlements for this long")
}

func parsePlayTokens(values []string) (android.StaticTokens, error) {
	var tokens android.StaticTokens
	for _, value := range values {
		productID, token, ok := strings.Cut(value, "=")
		if !ok || productID == "" || token == "" {
			return nil, fmt.Errorf("invalid play token %q, expected product-id=token", value)
		}
		tokens = append(tokens, android.PurchaseToken{ProductID: productID, Token: token})
	}
	return tokens, nil
}

func formatSet(set iap.EntitlementSet) string {
	ids := set.ProductIDs()
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}
