package android

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"

	"github.com/code-payments/flipchat-iapkit/iap"
)

// Purchase states reported by the Play Developer API for one-time products.
const (
	purchaseStatePurchased int64 = 0
	purchaseStateCancelled int64 = 1
	purchaseStatePending   int64 = 2
)

var (
	_ iap.Catalog        = (*PlayClient)(nil)
	_ iap.SnapshotSource = (*PlayClient)(nil)
)

// PurchaseToken identifies a purchase made on a device. Tokens are reported
// by the app after each purchase and are the only handle the Play Developer
// API accepts for looking a purchase up.
type PurchaseToken struct {
	ProductID string
	Token     string
}

// TokenLister provides the purchase tokens known for the current user.
type TokenLister interface {
	PurchaseTokens(ctx context.Context) ([]PurchaseToken, error)
}

// StaticTokens is a fixed TokenLister.
type StaticTokens []PurchaseToken

func (s StaticTokens) PurchaseTokens(context.Context) ([]PurchaseToken, error) {
	return s, nil
}

// PlayClient reads the catalog and the user's purchases from the Google Play
// Developer API.
//
// Transactions produced by PlayClient carry the purchase token as their ID and
// the order ID as their original ID.
type PlayClient struct {
	log         *zap.Logger
	svc         *androidpublisher.Service
	packageName string
	tokens      TokenLister
}

func NewPlayClient(
	ctx context.Context,
	log *zap.Logger,
	serviceAccountJSON []byte,
	packageName string,
	tokens TokenLister,
) (*PlayClient, error) {
	svc, err := androidpublisher.NewService(ctx, option.WithCredentialsJSON(serviceAccountJSON))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create android publisher client")
	}

	return &PlayClient{
		log:         log,
		svc:         svc,
		packageName: packageName,
		tokens:      tokens,
	}, nil
}

func (c *PlayClient) ListProducts(ctx context.Context, ids []string) ([]iap.Product, error) {
	products := make([]iap.Product, 0, len(ids))
	for _, id := range ids {
		resp, err := c.svc.Inappproducts.Get(c.packageName, id).Context(ctx).Do()
		if isNotFound(err) {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "failed to get product %s", id)
		}

		product, err := toProduct(resp)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, nil
}

func (c *PlayClient) CurrentEntitlements(ctx context.Context) <-chan iap.VerificationResult {
	out := make(chan iap.VerificationResult)

	go func() {
		defer close(out)

		tokens, err := c.tokens.PurchaseTokens(ctx)
		if err != nil {
			c.log.Warn("Failed to list purchase tokens", zap.Error(err))
			return
		}

		for _, token := range tokens {
			purchase, err := c.svc.Purchases.Products.Get(c.packageName, token.ProductID, token.Token).Context(ctx).Do()

			result, ok := toResult(token, purchase, err, time.Now())
			if !ok {
				c.log.Debug("Skipping pending purchase", zap.String("product_id", token.ProductID))
				continue
			}

			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Finish acknowledges the purchase. Unacknowledged purchases are refunded by
// Google Play after three days.
func (c *PlayClient) Finish(ctx context.Context, tx iap.Transaction) error {
	err := c.svc.Purchases.Products.Acknowledge(
		c.packageName,
		tx.ProductID,
		tx.ID,
		&androidpublisher.ProductPurchasesAcknowledgeRequest{},
	).Context(ctx).Do()
	if err != nil {
		return errors.Wrapf(err, "failed to acknowledge purchase of %s", tx.ProductID)
	}
	return nil
}

// Config holds configuration for the Google Play catalog.
type Config struct {
	// PackageName is the Android app's package name. The Play catalog is only
	// used when it is set.
	PackageName string `mapstructure:"package_name" default:""`
	// CredentialsPath points at a service account JSON file.
	CredentialsPath string `mapstructure:"credentials_path" default:""`
}

func (c Config) Enabled() bool {
	return c.PackageName != "" && c.CredentialsPath != ""
}
