package iap_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/code-payments/flipchat-iapkit/event"
	"github.com/code-payments/flipchat-iapkit/iap"
	"github.com/code-payments/flipchat-iapkit/iap/memory"
	"github.com/code-payments/flipchat-iapkit/iap/tests"
)

func TestReconciler_FeedScenario(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)
	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil)
	defer r.Close()

	stream := r.UserEntitlements().Subscribe(context.Background())
	require.Empty(t, tests.Receive(t, stream.Channel()))

	platform.Deliver(iap.VerifiedResult(iap.Transaction{ID: "1", ProductID: "A"}))
	require.Equal(t, []string{"A"}, tests.Receive(t, stream.Channel()).ProductIDs())

	now := time.Now()
	platform.Deliver(iap.VerifiedResult(iap.Transaction{ID: "1", ProductID: "A", RevokedAt: &now}))
	require.Empty(t, tests.Receive(t, stream.Channel()))
}

func TestReconciler_PublishesEveryFeedEvent(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)
	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil)
	defer r.Close()

	stream := r.UserEntitlements().Subscribe(context.Background())
	tests.Receive(t, stream.Channel())

	grant := iap.VerifiedResult(iap.Transaction{ID: "1", ProductID: "A"})
	platform.Deliver(grant)
	platform.Deliver(grant)

	require.Equal(t, []string{"A"}, tests.Receive(t, stream.Channel()).ProductIDs())
	require.Equal(t, []string{"A"}, tests.Receive(t, stream.Channel()).ProductIDs())
}

func TestReconciler_PublishOnChangeOnly(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)
	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil, iap.WithPublishOnChangeOnly())
	defer r.Close()

	stream := r.UserEntitlements().Subscribe(context.Background())
	tests.Receive(t, stream.Channel())

	grant := iap.VerifiedResult(iap.Transaction{ID: "1", ProductID: "A"})
	platform.Deliver(grant)
	platform.Deliver(grant)
	platform.Deliver(iap.UnverifiedResult(iap.Transaction{ID: "2", ProductID: "B"}, errors.New("bad signature")))

	require.Equal(t, []string{"A"}, tests.Receive(t, stream.Channel()).ProductIDs())
	tests.RequireNoValue(t, stream.Channel())
}

func TestReconciler_ResyncScenario(t *testing.T) {
	revokedAt := time.Now()
	snapshot := memory.Snapshot{
		iap.VerifiedResult(iap.Transaction{ID: "1", ProductID: "A"}),
		iap.VerifiedResult(iap.Transaction{ID: "2", ProductID: "B"}),
		iap.VerifiedResult(iap.Transaction{ID: "1", ProductID: "A", RevokedAt: &revokedAt}),
	}

	platform := memory.NewPlatform(tests.Products...)
	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil, iap.WithSnapshotSource(snapshot))
	defer r.Close()

	stream := r.UserEntitlements().Subscribe(context.Background())
	tests.Receive(t, stream.Channel())

	r.RefreshEntitlements(context.Background())
	require.Equal(t, []string{"B"}, tests.Receive(t, stream.Channel()).ProductIDs())

	// Published once per resync, not once per transaction.
	tests.RequireNoValue(t, stream.Channel())

	r.RefreshEntitlements(context.Background())
	require.Equal(t, []string{"B"}, tests.Receive(t, stream.Channel()).ProductIDs())
	require.Equal(t, []string{"B"}, r.UserEntitlements().Value().ProductIDs())
}

func TestReconciler_ResyncSeedsFromCurrentSet(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)
	snapshot := memory.Snapshot{iap.VerifiedResult(iap.Transaction{ID: "2", ProductID: "B"})}

	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil, iap.WithSnapshotSource(snapshot))
	defer r.Close()

	platform.Deliver(iap.VerifiedResult(iap.Transaction{ID: "1", ProductID: "A"}))
	tests.WaitForEntitlements(t, r, "A")

	r.RefreshEntitlements(context.Background())
	require.Equal(t, []string{"A", "B"}, r.UserEntitlements().Value().ProductIDs())
}

func TestReconciler_ResyncDropsIncompleteSnapshot(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)
	snapshot := memory.Snapshot{iap.VerifiedResult(iap.Transaction{ID: "1", ProductID: "A"})}

	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil, iap.WithSnapshotSource(snapshot))
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.RefreshEntitlements(ctx)
	require.Empty(t, r.UserEntitlements().Value())
}

func TestReconciler_FetchUsesConfiguredProducts(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)
	r := iap.NewReconciler(zaptest.NewLogger(t), platform, []string{tests.ProductStickers.ID})
	defer r.Close()

	require.NoError(t, r.FetchAvailableProducts(context.Background()))
	require.Equal(t, []iap.Product{tests.ProductStickers}, r.AvailableProducts().Value())
}

func TestReconciler_CatalogOverride(t *testing.T) {
	platform := memory.NewPlatform()
	catalog := memory.NewPlatform(tests.ProductPremium)

	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil, iap.WithCatalog(catalog))
	defer r.Close()

	require.NoError(t, r.FetchAvailableProducts(context.Background(), tests.ProductPremium.ID))
	require.Equal(t, []iap.Product{tests.ProductPremium}, r.AvailableProducts().Value())
}

type unfinishablePlatform struct {
	*memory.Platform
}

func (p *unfinishablePlatform) Finish(context.Context, iap.Transaction) error {
	return errors.New("finish failed")
}

func TestReconciler_PurchaseFinishesTransaction(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)
	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil)
	defer r.Close()

	stream := r.UserEntitlements().Subscribe(context.Background())
	tests.Receive(t, stream.Channel())

	require.NoError(t, r.Purchase(context.Background(), tests.ProductPremium))
	require.Equal(t, []string{tests.ProductPremium.ID}, tests.Receive(t, stream.Channel()).ProductIDs())

	var txID string
	for result := range platform.CurrentEntitlements(context.Background()) {
		txID = result.Transaction.ID
	}
	require.True(t, platform.Finished(txID))

	failing := &unfinishablePlatform{Platform: memory.NewPlatform(tests.Products...)}
	r2 := iap.NewReconciler(zaptest.NewLogger(t), failing, nil)
	defer r2.Close()

	require.NoError(t, r2.Purchase(context.Background(), tests.ProductStickers))
	require.True(t, r2.UserEntitlements().Value().Contains(tests.ProductStickers.ID))
}

func TestReconciler_Close(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)
	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil)

	stream := r.UserEntitlements().Subscribe(context.Background())
	tests.Receive(t, stream.Channel())
	require.Equal(t, 1, platform.Subscribers())

	r.Close()
	r.Close()

	_, ok := <-stream.Channel()
	require.False(t, ok)
	require.Eventually(t, func() bool {
		return platform.Subscribers() == 0
	}, time.Second, 5*time.Millisecond)

	_, err := platform.Grant(tests.ProductPremium.ID)
	require.NoError(t, err)
	r.RefreshEntitlements(context.Background())
	require.NoError(t, r.FetchAvailableProducts(context.Background()))

	require.Empty(t, r.UserEntitlements().Value())
	require.Empty(t, r.AvailableProducts().Value())
}

func TestReconciler_ReleasedWithoutClose(t *testing.T) {
	platform := memory.NewPlatform(tests.Products...)

	func() {
		r := iap.NewReconciler(zap.NewNop(), platform, nil)
		r.RefreshEntitlements(context.Background())
	}()
	require.Equal(t, 1, platform.Subscribers())

	require.Eventually(t, func() bool {
		runtime.GC()
		return platform.Subscribers() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReconciler_EventBus(t *testing.T) {
	var mu sync.Mutex
	var received []iap.EntitlementEvent

	bus := event.NewBus[string, *iap.EntitlementEvent]()
	bus.AddHandler(event.HandlerFunc[string, *iap.EntitlementEvent](func(_ string, e *iap.EntitlementEvent) {
		mu.Lock()
		received = append(received, *e)
		mu.Unlock()
	}))

	platform := memory.NewPlatform(tests.Products...)
	r := iap.NewReconciler(zaptest.NewLogger(t), platform, nil, iap.WithEventBus(bus))
	defer r.Close()

	_, err := platform.Grant(tests.ProductPremium.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, tests.ProductPremium.ID, received[0].ProductID)
	require.Equal(t, iap.TransitionGranted, received[0].Transition)
	require.Equal(t, iap.SourceFeed, received[0].Source)
	mu.Unlock()

	// Purchases are not delivered over the feed, the resync that follows
	// reports them.
	require.NoError(t, r.Purchase(context.Background(), tests.ProductStickers))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, tests.ProductStickers.ID, received[1].ProductID)
	require.Equal(t, iap.TransitionGranted, received[1].Transition)
	require.Equal(t, iap.SourceResync, received[1].Source)
	mu.Unlock()
}
