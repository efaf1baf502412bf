package iap

import (
	"maps"
	"slices"
)

// EntitlementSet is the set of product IDs the user currently has verified,
// unrevoked access to.
type EntitlementSet map[string]struct{}

func NewEntitlementSet(productIDs ...string) EntitlementSet {
	s := make(EntitlementSet, len(productIDs))
	for _, id := range productIDs {
		s[id] = struct{}{}
	}
	return s
}

func (s EntitlementSet) Contains(productID string) bool {
	_, ok := s[productID]
	return ok
}

// ProductIDs returns the members in sorted order.
func (s EntitlementSet) ProductIDs() []string {
	return slices.Sorted(maps.Keys(s))
}

func (s EntitlementSet) Clone() EntitlementSet {
	if s == nil {
		return EntitlementSet{}
	}
	return maps.Clone(s)
}

func (s EntitlementSet) Equal(other EntitlementSet) bool {
	return maps.Equal(s, other)
}

// Apply moves the result's product between absent and granted and reports the
// transition that took place. Unverified results are ignored. Applying the
// same result twice is a no-op the second time.
func (s EntitlementSet) Apply(result VerificationResult) Transition {
	if result.Status != Verified {
		return TransitionNone
	}

	productID := result.Transaction.ProductID
	if productID == "" {
		return TransitionNone
	}

	_, granted := s[productID]
	if result.Transaction.RevokedAt == nil {
		if granted {
			return TransitionNone
		}
		s[productID] = struct{}{}
		return TransitionGranted
	}

	if !granted {
		return TransitionNone
	}
	delete(s, productID)
	return TransitionRevoked
}
