package iap

import (
	"context"
	"errors"
)

// ErrUserCancelled is returned by a platform when the user dismisses a
// platform-owned flow, such as the restore sheet.
var ErrUserCancelled = errors.New("user cancelled")

// Catalog looks up purchasable products.
type Catalog interface {
	// ListProducts returns the products for the given IDs. Unknown IDs are
	// omitted from the result rather than reported as errors.
	ListProducts(ctx context.Context, ids []string) ([]Product, error)
}

// Checkout runs the platform's purchase and restore flows.
type Checkout interface {
	// Purchase runs a purchase flow for a single product. Pending, cancelled
	// and unverified outcomes are reported through the outcome, not an error.
	Purchase(ctx context.Context, product Product) (PurchaseOutcome, error)

	// Finish tells the platform the transaction's content has been delivered.
	Finish(ctx context.Context, tx Transaction) error

	// Restore asks the platform to resync the user's purchase history. A user
	// dismissing the platform UI is reported as ErrUserCancelled.
	Restore(ctx context.Context) error
}

// TransactionFeed is the platform's live stream of transaction events.
type TransactionFeed interface {
	// TransactionUpdates delivers events in order per product for as long as
	// ctx is alive. The channel is closed only once ctx is done.
	TransactionUpdates(ctx context.Context) <-chan VerificationResult
}

// SnapshotSource provides the user's complete current entitlement state.
type SnapshotSource interface {
	// CurrentEntitlements delivers a finite snapshot and then closes the
	// channel.
	CurrentEntitlements(ctx context.Context) <-chan VerificationResult
}

// Platform is the full purchasing service a Reconciler mediates.
type Platform interface {
	Catalog
	Checkout
	TransactionFeed
	SnapshotSource
}
