package iap

import (
	"context"
	"errors"

	"github.com/code-payments/flipchat-iapkit/event"
)

var (
	ErrFetchFailed      = errors.New("failed to fetch products")
	ErrPurchaseFailed   = errors.New("failed to purchase product")
	ErrRestoreFailed    = errors.New("failed to restore purchases")
	ErrRestoreCancelled = errors.New("restore cancelled by user")
)

// Gateway is what an application uses to sell products and to follow what the
// user is entitled to.
type Gateway interface {
	// FetchAvailableProducts refreshes the catalog for the given product IDs,
	// or for the IDs configured at construction if none are given. On failure
	// the previous catalog is kept and ErrFetchFailed is returned.
	FetchAvailableProducts(ctx context.Context, ids ...string) error

	// Purchase runs a purchase flow. Only platform failures are errors
	// (ErrPurchaseFailed); pending, cancelled and unverified purchases return
	// nil and leave entitlements untouched.
	Purchase(ctx context.Context, product Product) error

	// RestorePurchases asks the platform to resync purchase history. Returns
	// ErrRestoreCancelled if the user dismissed the platform UI and
	// ErrRestoreFailed otherwise.
	RestorePurchases(ctx context.Context) error

	// RefreshEntitlements replays the platform's current entitlements and
	// publishes the result.
	RefreshEntitlements(ctx context.Context)

	AvailableProducts() event.Observable[[]Product]
	UserEntitlements() event.Observable[EntitlementSet]

	// Close stops following the platform and ends every subscription.
	Close()
}
