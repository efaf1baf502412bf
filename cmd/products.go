package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/code-payments/flipchat-iapkit/iap"
)

var productsCmd = &cobra.Command{
	Use:   "products [product-id...]",
	Short: "Fetch and print the product catalog",
	Long: `Fetches the given products, or the configured IAP_PRODUCT_IDS when none
are given, and prints them. Unknown product IDs are omitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, log, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.reconciler.FetchAvailableProducts(cmd.Context(), args...); err != nil {
			return err
		}

		return printProducts(cmd, a.reconciler.AvailableProducts().Value())
	},
}

func printProducts(cmd *cobra.Command, products []iap.Product) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tPRICE")
	for _, product := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", product.ID, product.DisplayName, product.Type, product.DisplayPrice())
	}
	return w.Flush()
}
