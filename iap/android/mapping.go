package android

import (
	"errors"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"

	"github.com/code-payments/flipchat-iapkit/iap"
)

func toProduct(p *androidpublisher.InAppProduct) (iap.Product, error) {
	product := iap.Product{
		ID:   p.Sku,
		Type: toProductType(p.PurchaseType),
	}

	if listing, ok := p.Listings[p.DefaultLanguage]; ok {
		product.DisplayName = listing.Title
		product.Description = listing.Description
	}

	if p.DefaultPrice != nil {
		micros, err := decimal.NewFromString(p.DefaultPrice.PriceMicros)
		if err != nil {
			return iap.Product{}, pkgerrors.Wrapf(err, "invalid price for %s", p.Sku)
		}
		product.Price = micros.Shift(-6)
		product.CurrencyCode = p.DefaultPrice.Currency
	}

	return product, nil
}

func toProductType(purchaseType string) iap.ProductType {
	switch purchaseType {
	case "managedUser":
		return iap.ProductTypeNonConsumable
	case "subscription":
		return iap.ProductTypeAutoRenewable
	default:
		return iap.ProductTypeUnknown
	}
}

// toResult maps a purchase lookup to a verification result. It returns false
// for purchases that are still pending, which grant nothing yet.
func toResult(token PurchaseToken, p *androidpublisher.ProductPurchase, err error, now time.Time) (iap.VerificationResult, bool) {
	tx := iap.Transaction{
		ID:        token.Token,
		ProductID: token.ProductID,
	}

	if err != nil {
		return iap.UnverifiedResult(tx, pkgerrors.Wrap(err, "failed to get purchase")), true
	}

	tx.OriginalID = p.OrderId
	tx.PurchasedAt = time.UnixMilli(p.PurchaseTimeMillis)

	switch p.PurchaseState {
	case purchaseStatePurchased:
		return iap.VerifiedResult(tx), true
	case purchaseStateCancelled:
		tx.RevokedAt = &now
		return iap.VerifiedResult(tx), true
	case purchaseStatePending:
		return iap.VerificationResult{}, false
	default:
		return iap.UnverifiedResult(tx, pkgerrors.Errorf("unknown purchase state %d", p.PurchaseState)), true
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
