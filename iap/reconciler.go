package iap

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"
	"time"
	"weak"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iapkit/event"
)

var _ Gateway = (*Reconciler)(nil)

// Reconciler is the Gateway implementation. It mirrors the platform's view of
// the user's entitlements into an observable set, driven by the platform's
// live transaction feed and by explicit resyncs.
//
// The feed and resyncs are not ordered with respect to each other: whichever
// publishes last wins. Each one's read, apply and publish happens under a
// single lock, so neither ever observes a partial write from the other.
type Reconciler struct {
	log          *zap.Logger
	platform     Platform
	catalog      Catalog
	snapshots    SnapshotSource
	eventBus     *event.Bus[string, *EntitlementEvent]
	onChangeOnly bool
	productIDs   []string

	products     *event.Subject[[]Product]
	entitlements *event.Subject[EntitlementSet]

	mu     sync.Mutex
	closed bool

	closeOnce     sync.Once
	cancelUpdates context.CancelFunc
	updatesDone   chan struct{}
	cleanup       runtime.Cleanup
}

// NewReconciler creates a Reconciler and starts consuming the platform's
// transaction feed. productIDs is the catalog fetched when
// FetchAvailableProducts is called without IDs. Close must be called to stop
// the feed; if it never is, the feed is stopped once the Reconciler is
// garbage collected.
func NewReconciler(log *zap.Logger, platform Platform, productIDs []string, opts ...Option) *Reconciler {
	o := ApplyOptions(opts...)

	r := &Reconciler{
		log:          log,
		platform:     platform,
		catalog:      platform,
		snapshots:    platform,
		eventBus:     o.EventBus,
		onChangeOnly: o.OnChangeOnly,
		productIDs:   slices.Clone(productIDs),
		products: event.NewSubject[[]Product](
			nil,
			slices.Clone[[]Product],
			o.BufferSize,
			o.NotifyTimeout,
		),
		entitlements: event.NewSubject(
			NewEntitlementSet(),
			EntitlementSet.Clone,
			o.BufferSize,
			o.NotifyTimeout,
		),
		updatesDone: make(chan struct{}),
	}
	if o.Catalog != nil {
		r.catalog = o.Catalog
	}
	if o.Snapshots != nil {
		r.snapshots = o.Snapshots
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancelUpdates = cancel

	updates := platform.TransactionUpdates(ctx)
	go observeTransactionUpdates(ctx, weak.Make(r), updates, r.updatesDone)

	r.cleanup = runtime.AddCleanup(r, func(cancel context.CancelFunc) {
		cancel()
	}, cancel)

	return r
}

// observeTransactionUpdates only holds a weak reference so that the feed does
// not keep an abandoned Reconciler alive.
func observeTransactionUpdates(
	ctx context.Context,
	ref weak.Pointer[Reconciler],
	updates <-chan VerificationResult,
	done chan<- struct{},
) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-updates:
			if !ok {
				return
			}

			r := ref.Value()
			if r == nil {
				return
			}
			r.applyUpdate(result)
		}
	}
}

func (r *Reconciler) AvailableProducts() event.Observable[[]Product] {
	return r.products
}

func (r *Reconciler) UserEntitlements() event.Observable[EntitlementSet] {
	return r.entitlements
}

func (r *Reconciler) FetchAvailableProducts(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		ids = r.productIDs
	}

	log := r.log.With(zap.Strings("product_ids", ids))

	products, err := r.catalog.ListProducts(ctx, ids)
	if err != nil {
		log.Warn("Failed to fetch products", zap.Error(err))
		return ErrFetchFailed
	}

	log.Debug("Fetched products", zap.Int("num_products", len(products)))
	r.products.Publish(products)
	return nil
}

func (r *Reconciler) Purchase(ctx context.Context, product Product) error {
	log := r.log.With(zap.String("product_id", product.ID))

	outcome, err := r.platform.Purchase(ctx, product)
	if err != nil {
		log.Warn("Failed to purchase product", zap.Error(err))
		return ErrPurchaseFailed
	}

	log = log.With(zap.Stringer("outcome", outcome.Kind))

	switch outcome.Kind {
	case OutcomeVerified:
		log.Debug("Purchase verified", zap.String("transaction_id", outcome.Transaction.ID))

		if err := r.platform.Finish(ctx, outcome.Transaction); err != nil {
			log.Warn("Failed to finish transaction", zap.Error(err))
		}
		r.RefreshEntitlements(ctx)
	default:
		// Pending and unverified purchases surface later through the feed.
		log.Debug("Purchase not completed")
	}

	return nil
}

func (r *Reconciler) RestorePurchases(ctx context.Context) error {
	err := r.platform.Restore(ctx)
	if errors.Is(err, ErrUserCancelled) {
		r.log.Debug("Restore cancelled by user")
		return ErrRestoreCancelled
	} else if err != nil {
		r.log.Warn("Failed to restore purchases", zap.Error(err))
		return ErrRestoreFailed
	}

	return nil
}

func (r *Reconciler) RefreshEntitlements(ctx context.Context) {
	// Drain before locking so platform I/O never blocks the live feed.
	var results []VerificationResult
	for result := range r.snapshots.CurrentEntitlements(ctx) {
		results = append(results, result)
	}

	if err := ctx.Err(); err != nil {
		r.log.Warn("Dropping incomplete entitlement snapshot", zap.Error(err), zap.Int("num_results", len(results)))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	before := r.entitlements.Value()
	working := before.Clone()
	for _, result := range results {
		r.apply(working, result)
	}

	r.entitlements.Publish(working)

	r.log.Debug(
		"Refreshed entitlements",
		zap.Int("num_results", len(results)),
		zap.Strings("product_ids", working.ProductIDs()),
	)

	// Only net changes are reported for a resync.
	for _, id := range working.ProductIDs() {
		if !before.Contains(id) {
			r.emit(id, TransitionGranted, SourceResync)
		}
	}
	for _, id := range before.ProductIDs() {
		if !working.Contains(id) {
			r.emit(id, TransitionRevoked, SourceResync)
		}
	}
}

// Close stops the live feed and ends every subscription. It blocks until the
// feed goroutine has exited, after which nothing is published again. Close is
// safe to call more than once.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		r.cleanup.Stop()
		r.cancelUpdates()
		<-r.updatesDone

		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		r.entitlements.Close()
		r.products.Close()
	})
}

func (r *Reconciler) applyUpdate(result VerificationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	working := r.entitlements.Value()
	transition := r.apply(working, result)
	if transition == TransitionNone && r.onChangeOnly {
		return
	}

	r.entitlements.Publish(working)
	if transition != TransitionNone {
		r.emit(result.Transaction.ProductID, transition, SourceFeed)
	}
}

func (r *Reconciler) apply(set EntitlementSet, result VerificationResult) Transition {
	if result.Status != Verified {
		r.log.Debug(
			"Ignoring unverified transaction",
			zap.String("transaction_id", result.Transaction.ID),
			zap.String("product_id", result.Transaction.ProductID),
			zap.Error(result.Err),
		)
		return TransitionNone
	}

	return set.Apply(result)
}

func (r *Reconciler) emit(productID string, transition Transition, source Source) {
	if r.eventBus == nil {
		return
	}

	err := r.eventBus.OnEvent(productID, &EntitlementEvent{
		ProductID:  productID,
		Transition: transition,
		Source:     source,
		Timestamp:  time.Now(),
	})
	if err != nil {
		r.log.Warn("Failed to notify entitlement event", zap.Error(err))
	}
}
