package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flipchat-iapkit/iap"
)

var (
	ProductPremium = iap.Product{
		ID:           "com.flipchat.iap.premium",
		DisplayName:  "Premium",
		Price:        decimal.RequireFromString("4.99"),
		CurrencyCode: "USD",
		Type:         iap.ProductTypeNonConsumable,
	}
	ProductStickers = iap.Product{
		ID:           "com.flipchat.iap.stickers",
		DisplayName:  "Sticker Pack",
		Price:        decimal.RequireFromString("0.99"),
		CurrencyCode: "USD",
		Type:         iap.ProductTypeNonConsumable,
	}

	Products = []iap.Product{ProductPremium, ProductStickers}
)

// Controller drives a test platform from the outside.
type Controller interface {
	Grant(productID string) (iap.Transaction, error)
	Revoke(productID string) (iap.Transaction, error)
	ApprovePending(productID string) (iap.Transaction, error)
	Deliver(result iap.VerificationResult)
	Finished(txID string) bool

	SetListError(err error)
	SetPurchaseError(err error)
	SetRestoreError(err error)
	SetPurchaseOutcome(productID string, kind iap.OutcomeKind)
}

// GatewayFactory creates a gateway backed by the controlled platform. The
// platform must serve Products.
type GatewayFactory func(t *testing.T) iap.Gateway

func RunGatewayTests(t *testing.T, c Controller, newGateway GatewayFactory, teardown func()) {
	for _, tf := range []func(t *testing.T, c Controller, g iap.Gateway){
		testGateway_InitiallyEmpty,
		testGateway_FeedGrantAndRevoke,
		testGateway_FeedIgnoresUnverified,
		testGateway_FetchProducts,
		testGateway_PurchaseVerified,
		testGateway_PurchaseWithoutCompletion,
		testGateway_PurchasePendingApproved,
		testGateway_PurchaseFailure,
		testGateway_Restore,
		testGateway_RefreshIdempotent,
	} {
		g := newGateway(t)
		tf(t, c, g)
		g.Close()
		teardown()
	}
}

func testGateway_InitiallyEmpty(t *testing.T, _ Controller, g iap.Gateway) {
	require.Empty(t, g.UserEntitlements().Value())
	require.Empty(t, g.AvailableProducts().Value())
}

func testGateway_FeedGrantAndRevoke(t *testing.T, c Controller, g iap.Gateway) {
	_, err := c.Grant(ProductPremium.ID)
	require.NoError(t, err)
	WaitForEntitlements(t, g, ProductPremium.ID)

	_, err = c.Revoke(ProductPremium.ID)
	require.NoError(t, err)
	WaitForEntitlements(t, g)
}

func testGateway_FeedIgnoresUnverified(t *testing.T, c Controller, g iap.Gateway) {
	stream := g.UserEntitlements().Subscribe(context.Background())
	defer stream.Close()
	require.Empty(t, Receive(t, stream.Channel()))

	c.Deliver(iap.UnverifiedResult(iap.Transaction{
		ID:          "forged",
		ProductID:   ProductPremium.ID,
		PurchasedAt: time.Now(),
	}, errors.New("bad signature")))

	// The feed still republishes, but the set is unchanged.
	require.Empty(t, Receive(t, stream.Channel()))
	require.Empty(t, g.UserEntitlements().Value())
}

func testGateway_FetchProducts(t *testing.T, c Controller, g iap.Gateway) {
	ctx := context.Background()

	require.NoError(t, g.FetchAvailableProducts(ctx, ProductPremium.ID, "unknown"))
	require.Equal(t, []iap.Product{ProductPremium}, g.AvailableProducts().Value())

	stream := g.AvailableProducts().Subscribe(ctx)
	defer stream.Close()
	require.Equal(t, []iap.Product{ProductPremium}, Receive(t, stream.Channel()))

	c.SetListError(errors.New("store unavailable"))
	err := g.FetchAvailableProducts(ctx, ProductStickers.ID)
	require.ErrorIs(t, err, iap.ErrFetchFailed)
	require.Equal(t, iap.ErrFetchFailed, err)

	RequireNoValue(t, stream.Channel())
	require.Equal(t, []iap.Product{ProductPremium}, g.AvailableProducts().Value())

	c.SetListError(nil)
	require.NoError(t, g.FetchAvailableProducts(ctx, ProductPremium.ID, ProductStickers.ID))
	require.Equal(t, Products, Receive(t, stream.Channel()))
}

func testGateway_PurchaseVerified(t *testing.T, c Controller, g iap.Gateway) {
	require.NoError(t, g.Purchase(context.Background(), ProductPremium))
	require.True(t, g.UserEntitlements().Value().Contains(ProductPremium.ID))
}

func testGateway_PurchaseWithoutCompletion(t *testing.T, c Controller, g iap.Gateway) {
	for _, kind := range []iap.OutcomeKind{iap.OutcomePending, iap.OutcomeUserCancelled, iap.OutcomeUnverified} {
		c.SetPurchaseOutcome(ProductStickers.ID, kind)

		require.NoError(t, g.Purchase(context.Background(), ProductStickers), kind.String())
		require.Empty(t, g.UserEntitlements().Value(), kind.String())
	}
}

func testGateway_PurchasePendingApproved(t *testing.T, c Controller, g iap.Gateway) {
	c.SetPurchaseOutcome(ProductPremium.ID, iap.OutcomePending)

	require.NoError(t, g.Purchase(context.Background(), ProductPremium))
	require.Empty(t, g.UserEntitlements().Value())

	_, err := c.ApprovePending(ProductPremium.ID)
	require.NoError(t, err)
	WaitForEntitlements(t, g, ProductPremium.ID)
}

func testGateway_PurchaseFailure(t *testing.T, c Controller, g iap.Gateway) {
	c.SetPurchaseError(errors.New("payment sheet failed"))

	err := g.Purchase(context.Background(), ProductPremium)
	require.Equal(t, iap.ErrPurchaseFailed, err)
	require.Empty(t, g.UserEntitlements().Value())
}

func testGateway_Restore(t *testing.T, c Controller, g iap.Gateway) {
	ctx := context.Background()

	c.SetRestoreError(iap.ErrUserCancelled)
	require.Equal(t, iap.ErrRestoreCancelled, g.RestorePurchases(ctx))

	c.SetRestoreError(errors.New("network down"))
	require.Equal(t, iap.ErrRestoreFailed, g.RestorePurchases(ctx))
	require.Empty(t, g.UserEntitlements().Value())

	c.SetRestoreError(nil)
	require.NoError(t, g.Purchase(ctx, ProductStickers))
	WaitForEntitlements(t, g, ProductStickers.ID)

	require.NoError(t, g.RestorePurchases(ctx))
	WaitForEntitlements(t, g, ProductStickers.ID)
}

func testGateway_RefreshIdempotent(t *testing.T, c Controller, g iap.Gateway) {
	ctx := context.Background()

	_, err := c.Grant(ProductPremium.ID)
	require.NoError(t, err)
	_, err = c.Grant(ProductStickers.ID)
	require.NoError(t, err)
	WaitForEntitlements(t, g, ProductPremium.ID, ProductStickers.ID)

	_, err = c.Revoke(ProductStickers.ID)
	require.NoError(t, err)
	WaitForEntitlements(t, g, ProductPremium.ID)

	g.RefreshEntitlements(ctx)
	first := g.UserEntitlements().Value()
	require.Equal(t, []string{ProductPremium.ID}, first.ProductIDs())

	g.RefreshEntitlements(ctx)
	require.True(t, first.Equal(g.UserEntitlements().Value()))
}

// WaitForEntitlements waits until the gateway's entitlements are exactly
// productIDs.
func WaitForEntitlements(t *testing.T, g iap.Gateway, productIDs ...string) {
	t.Helper()

	expected := iap.NewEntitlementSet(productIDs...)
	require.Eventually(t, func() bool {
		return g.UserEntitlements().Value().Equal(expected)
	}, time.Second, 5*time.Millisecond, "expected entitlements %v", productIDs)
}

func Receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v, ok := <-ch:
		require.True(t, ok, "stream closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}

	var zero T
	return zero
}

func RequireNoValue[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}
