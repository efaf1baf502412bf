package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/flipchat-iapkit/iap"
	"github.com/code-payments/flipchat-iapkit/model"
)

var ErrProductNotFound = errors.New("product not found")

var _ iap.Platform = (*Platform)(nil)

// Platform is an in-memory purchasing platform. Every transaction it hands out
// goes through a sign and verify round trip, so tampered payloads surface as
// unverified results just like they would from a real store.
type Platform struct {
	mu sync.Mutex

	signer   *Signer
	verifier *Verifier
	forger   *Signer

	products []iap.Product
	outcomes map[string]iap.OutcomeKind
	pending  map[string]iap.Product

	// Latest signed transaction per product ID, revoked ones included.
	latest   map[string]string
	finished map[string]bool

	listErr     error
	purchaseErr error
	restoreErr  error

	nextSubscriberID int
	subscribers      map[int]*subscriber
}

func NewPlatform(products ...iap.Product) *Platform {
	pub, priv := MustGenerateKeyPair()
	_, forged := MustGenerateKeyPair()

	return &Platform{
		signer:      NewSigner(priv),
		verifier:    NewVerifier(pub),
		forger:      NewSigner(forged),
		products:    append([]iap.Product(nil), products...),
		outcomes:    make(map[string]iap.OutcomeKind),
		pending:     make(map[string]iap.Product),
		latest:      make(map[string]string),
		finished:    make(map[string]bool),
		subscribers: make(map[int]*subscriber),
	}
}

func (p *Platform) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outcomes = make(map[string]iap.OutcomeKind)
	p.pending = make(map[string]iap.Product)
	p.latest = make(map[string]string)
	p.finished = make(map[string]bool)
	p.listErr = nil
	p.purchaseErr = nil
	p.restoreErr = nil
}

// SetListError makes ListProducts fail with err until cleared with nil.
func (p *Platform) SetListError(err error) {
	p.mu.Lock()
	p.listErr = err
	p.mu.Unlock()
}

// SetPurchaseError makes Purchase fail with err until cleared with nil.
func (p *Platform) SetPurchaseError(err error) {
	p.mu.Lock()
	p.purchaseErr = err
	p.mu.Unlock()
}

// SetRestoreError makes Restore fail with err until cleared with nil.
func (p *Platform) SetRestoreError(err error) {
	p.mu.Lock()
	p.restoreErr = err
	p.mu.Unlock()
}

// SetPurchaseOutcome selects how purchases of productID resolve. Purchases are
// verified unless configured otherwise.
func (p *Platform) SetPurchaseOutcome(productID string, kind iap.OutcomeKind) {
	p.mu.Lock()
	p.outcomes[productID] = kind
	p.mu.Unlock()
}

func (p *Platform) ListProducts(_ context.Context, ids []string) ([]iap.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listErr != nil {
		return nil, p.listErr
	}

	var products []iap.Product
	for _, id := range ids {
		if product, ok := p.findProduct(id); ok {
			products = append(products, product)
		}
	}
	return products, nil
}

func (p *Platform) Purchase(_ context.Context, product iap.Product) (iap.PurchaseOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.purchaseErr != nil {
		return iap.PurchaseOutcome{}, p.purchaseErr
	}
	if _, ok := p.findProduct(product.ID); !ok {
		return iap.PurchaseOutcome{}, errors.Wrap(ErrProductNotFound, product.ID)
	}

	kind, ok := p.outcomes[product.ID]
	if !ok {
		kind = iap.OutcomeVerified
	}

	switch kind {
	case iap.OutcomeVerified:
		result, err := p.record(newTransaction(product.ID), p.signer)
		if err != nil {
			return iap.PurchaseOutcome{}, err
		}
		if result.Status != iap.Verified {
			return iap.PurchaseOutcome{Kind: iap.OutcomeUnverified, Transaction: result.Transaction}, nil
		}
		return iap.PurchaseOutcome{Kind: iap.OutcomeVerified, Transaction: result.Transaction}, nil
	case iap.OutcomeUnverified:
		signed, err := p.forger.Sign(newTransaction(product.ID))
		if err != nil {
			return iap.PurchaseOutcome{}, err
		}
		result := p.verifier.Verify(signed)
		return iap.PurchaseOutcome{Kind: iap.OutcomeUnverified, Transaction: result.Transaction}, nil
	case iap.OutcomePending:
		p.pending[product.ID] = product
		return iap.PurchaseOutcome{Kind: iap.OutcomePending}, nil
	default:
		return iap.PurchaseOutcome{Kind: kind}, nil
	}
}

func (p *Platform) Finish(_ context.Context, tx iap.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tx.ID == "" {
		return errors.New("transaction id is required")
	}
	p.finished[tx.ID] = true
	return nil
}

// Finished reports whether Finish was called for the transaction.
func (p *Platform) Finished(txID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.finished[txID]
}

// Restore re-delivers the latest transaction of every product over the live
// feed.
func (p *Platform) Restore(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.restoreErr != nil {
		return p.restoreErr
	}

	for _, signed := range p.latest {
		p.broadcast(p.verifier.Verify(signed))
	}
	return nil
}

func (p *Platform) CurrentEntitlements(ctx context.Context) <-chan iap.VerificationResult {
	p.mu.Lock()
	results := make([]iap.VerificationResult, 0, len(p.latest))
	for _, signed := range p.latest {
		results = append(results, p.verifier.Verify(signed))
	}
	p.mu.Unlock()

	return Snapshot(results).CurrentEntitlements(ctx)
}

func (p *Platform) TransactionUpdates(ctx context.Context) <-chan iap.VerificationResult {
	sub := newSubscriber()

	p.mu.Lock()
	id := p.nextSubscriberID
	p.nextSubscriberID++
	p.subscribers[id] = sub
	p.mu.Unlock()

	out := make(chan iap.VerificationResult)
	go func() {
		defer close(out)
		defer func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
		}()

		sub.run(ctx, out)
	}()

	return out
}

// Subscribers returns the number of open live feeds.
func (p *Platform) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.subscribers)
}

// Grant records a new verified transaction for productID and delivers it over
// the live feed, as happens for purchases made on another device.
func (p *Platform) Grant(productID string) (iap.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.record(newTransaction(productID), p.signer)
	if err != nil {
		return iap.Transaction{}, err
	}
	p.broadcast(result)
	return result.Transaction, nil
}

// Revoke revokes the latest transaction for productID and delivers the
// revocation over the live feed.
func (p *Platform) Revoke(productID string) (iap.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	signed, ok := p.latest[productID]
	if !ok {
		return iap.Transaction{}, errors.Wrap(ErrProductNotFound, productID)
	}

	tx := p.verifier.Verify(signed).Transaction
	revokedAt := now()
	tx.RevokedAt = &revokedAt

	result, err := p.record(tx, p.signer)
	if err != nil {
		return iap.Transaction{}, err
	}
	p.broadcast(result)
	return result.Transaction, nil
}

// ApprovePending completes a pending purchase of productID and delivers the
// resulting transaction over the live feed.
func (p *Platform) ApprovePending(productID string) (iap.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pending[productID]; !ok {
		return iap.Transaction{}, errors.Wrapf(ErrProductNotFound, "no pending purchase for %s", productID)
	}
	delete(p.pending, productID)

	result, err := p.record(newTransaction(productID), p.signer)
	if err != nil {
		return iap.Transaction{}, err
	}
	p.broadcast(result)
	return result.Transaction, nil
}

// Deliver pushes an arbitrary result over the live feed without touching the
// platform's own state.
func (p *Platform) Deliver(result iap.VerificationResult) {
	p.mu.Lock()
	p.broadcast(result)
	p.mu.Unlock()
}

// DeliverSigned verifies a signed transaction and pushes the result over the
// live feed. Verified transactions also become part of the current
// entitlements.
func (p *Platform) DeliverSigned(signed string) iap.VerificationResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := p.verifier.Verify(signed)
	if result.Status == iap.Verified {
		p.latest[result.Transaction.ProductID] = signed
	}
	p.broadcast(result)
	return result
}

// Sign signs tx with the platform's key.
func (p *Platform) Sign(tx iap.Transaction) (string, error) {
	return p.signer.Sign(tx)
}

// Forge signs tx with a key the platform does not trust.
func (p *Platform) Forge(tx iap.Transaction) (string, error) {
	return p.forger.Sign(tx)
}

// record signs tx and, if it verifies, stores it as the product's latest
// transaction.
func (p *Platform) record(tx iap.Transaction, signer *Signer) (iap.VerificationResult, error) {
	signed, err := signer.Sign(tx)
	if err != nil {
		return iap.VerificationResult{}, err
	}

	result := p.verifier.Verify(signed)
	if result.Status == iap.Verified {
		p.latest[tx.ProductID] = signed
	}
	return result, nil
}

func (p *Platform) broadcast(result iap.VerificationResult) {
	for _, sub := range p.subscribers {
		sub.push(result)
	}
}

func (p *Platform) findProduct(id string) (iap.Product, bool) {
	for _, product := range p.products {
		if product.ID == id {
			return product, true
		}
	}
	return iap.Product{}, false
}

func newTransaction(productID string) iap.Transaction {
	id := model.MustGenerateTransactionID().String()
	return iap.Transaction{
		ID:          id,
		OriginalID:  id,
		ProductID:   productID,
		PurchasedAt: now(),
	}
}

// now is truncated to the millisecond precision of signed payloads.
func now() time.Time {
	return time.UnixMilli(time.Now().UnixMilli())
}
