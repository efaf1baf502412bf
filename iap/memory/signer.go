package memory

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/code-payments/flipchat-iapkit/iap"
)

// transactionClaims is the payload of a signed transaction. Dates are unix
// milliseconds, matching what purchasing platforms put in their signed
// transaction payloads.
type transactionClaims struct {
	ProductID             string `json:"productId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	RevocationDate        *int64 `json:"revocationDate,omitempty"`

	jwt.RegisteredClaims
}

// Signer produces signed transactions as compact JWS strings (EdDSA).
type Signer struct {
	key ed25519.PrivateKey
}

func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key}
}

func (s *Signer) Sign(tx iap.Transaction) (string, error) {
	claims := transactionClaims{
		ProductID:             tx.ProductID,
		OriginalTransactionID: tx.OriginalID,
		PurchaseDate:          tx.PurchasedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       tx.ID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if tx.RevokedAt != nil {
		revoked := tx.RevokedAt.UnixMilli()
		claims.RevocationDate = &revoked
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign transaction")
	}
	return signed, nil
}

// Verifier checks signed transactions against the platform's public key.
type Verifier struct {
	key    ed25519.PublicKey
	parser *jwt.Parser
}

func NewVerifier(key ed25519.PublicKey) *Verifier {
	return &Verifier{
		key:    key,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()})),
	}
}

// Verify decodes a signed transaction. A payload that decodes but fails the
// signature check is returned as an unverified result so it can be logged;
// it never affects entitlements.
func (v *Verifier) Verify(signed string) iap.VerificationResult {
	var claims transactionClaims
	_, err := v.parser.ParseWithClaims(signed, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err == nil {
		return iap.VerifiedResult(claims.toTransaction())
	}

	var unverified transactionClaims
	if _, _, parseErr := v.parser.ParseUnverified(signed, &unverified); parseErr != nil {
		return iap.UnverifiedResult(iap.Transaction{}, errors.Wrap(parseErr, "malformed signed transaction"))
	}
	return iap.UnverifiedResult(unverified.toTransaction(), errors.Wrap(err, "invalid transaction signature"))
}

func (c *transactionClaims) toTransaction() iap.Transaction {
	tx := iap.Transaction{
		ID:          c.ID,
		OriginalID:  c.OriginalTransactionID,
		ProductID:   c.ProductID,
		PurchasedAt: time.UnixMilli(c.PurchaseDate),
	}
	if c.RevocationDate != nil {
		revoked := time.UnixMilli(*c.RevocationDate)
		tx.RevokedAt = &revoked
	}
	return tx
}

func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

func MustGenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		panic(fmt.Sprintf("failed to generate key pair: %v", err))
	}
	return pub, priv
}
