package iap

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	pricePrinter = message.NewPrinter(language.English)
)

type ProductType uint8

const (
	ProductTypeUnknown ProductType = iota
	ProductTypeConsumable
	ProductTypeNonConsumable
	ProductTypeAutoRenewable
	ProductTypeNonRenewable
)

func (t ProductType) String() string {
	switch t {
	case ProductTypeConsumable:
		return "consumable"
	case ProductTypeNonConsumable:
		return "non_consumable"
	case ProductTypeAutoRenewable:
		return "auto_renewable"
	case ProductTypeNonRenewable:
		return "non_renewable"
	default:
		return "unknown"
	}
}

// Product is a purchasable item as described by the platform. Only ID is
// interpreted by this package.
type Product struct {
	ID           string
	DisplayName  string
	Description  string
	Price        decimal.Decimal
	CurrencyCode string
	Type         ProductType
}

// DisplayPrice renders the price for display, e.g. "1,299.00 USD". The price
// is rounded half away from zero to two places.
func (p Product) DisplayPrice() string {
	rounded := p.Price.Round(2)

	var sign string
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}

	fixed := rounded.StringFixed(2)

	return pricePrinter.Sprintf("%s%d.%s %s", sign, rounded.IntPart(), fixed[len(fixed)-2:], p.CurrencyCode)
}

// Transaction is a platform record granting or revoking access to a product.
type Transaction struct {
	ID          string
	OriginalID  string
	ProductID   string
	PurchasedAt time.Time

	// RevokedAt is set iff the platform revoked the grant (refund, family
	// sharing removal, etc).
	RevokedAt *time.Time
}

func (t Transaction) IsRevoked() bool {
	return t.RevokedAt != nil
}

type VerificationStatus uint8

const (
	Unverified VerificationStatus = iota
	Verified
)

func (s VerificationStatus) String() string {
	if s == Verified {
		return "verified"
	}
	return "unverified"
}

// VerificationResult is a transaction together with the platform's verdict on
// its signature. Unverified results never affect entitlements.
type VerificationResult struct {
	Transaction Transaction
	Status      VerificationStatus

	// Err describes why verification failed, if it did.
	Err error
}

func VerifiedResult(tx Transaction) VerificationResult {
	return VerificationResult{Transaction: tx, Status: Verified}
}

func UnverifiedResult(tx Transaction, err error) VerificationResult {
	return VerificationResult{Transaction: tx, Status: Unverified, Err: err}
}

type OutcomeKind uint8

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeVerified
	OutcomeUnverified
	OutcomePending
	OutcomeUserCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeVerified:
		return "verified"
	case OutcomeUnverified:
		return "unverified"
	case OutcomePending:
		return "pending"
	case OutcomeUserCancelled:
		return "user_cancelled"
	default:
		return "unknown"
	}
}

// PurchaseOutcome is the result of a purchase flow that did not fail at the
// platform level. Transaction is only meaningful for OutcomeVerified.
type PurchaseOutcome struct {
	Kind        OutcomeKind
	Transaction Transaction
}

type Transition uint8

const (
	TransitionNone Transition = iota
	TransitionGranted
	TransitionRevoked
)

func (t Transition) String() string {
	switch t {
	case TransitionGranted:
		return "granted"
	case TransitionRevoked:
		return "revoked"
	default:
		return "none"
	}
}

type Source uint8

const (
	SourceFeed Source = iota
	SourceResync
)

func (s Source) String() string {
	if s == SourceResync {
		return "resync"
	}
	return "feed"
}

// EntitlementEvent reports a product moving between absent and granted.
type EntitlementEvent struct {
	ProductID  string
	Transition Transition
	Source     Source
	Timestamp  time.Time
}
