package iap

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEntitlementSet_Apply(t *testing.T) {
	revokedAt := time.Now()
	grant := VerifiedResult(Transaction{ID: "1", ProductID: "a"})
	revoke := VerifiedResult(Transaction{ID: "1", ProductID: "a", RevokedAt: &revokedAt})

	for _, prior := range []EntitlementSet{
		NewEntitlementSet(),
		NewEntitlementSet("a"),
		NewEntitlementSet("b"),
		NewEntitlementSet("a", "b"),
	} {
		set := prior.Clone()
		set.Apply(grant)
		require.True(t, set.Contains("a"))
		set.Apply(grant)
		require.True(t, set.Contains("a"))
		require.Equal(t, prior.Contains("b"), set.Contains("b"))

		set = prior.Clone()
		set.Apply(revoke)
		require.False(t, set.Contains("a"))
		set.Apply(revoke)
		require.False(t, set.Contains("a"))
		require.Equal(t, prior.Contains("b"), set.Contains("b"))
	}
}

func TestEntitlementSet_ApplyUnverified(t *testing.T) {
	revokedAt := time.Now()

	for _, prior := range []EntitlementSet{
		NewEntitlementSet(),
		NewEntitlementSet("a"),
		NewEntitlementSet("a", "b"),
	} {
		for _, tx := range []Transaction{
			{ID: "1", ProductID: "a"},
			{ID: "2", ProductID: "a", RevokedAt: &revokedAt},
			{ID: "3", ProductID: "c"},
		} {
			set := prior.Clone()
			require.Equal(t, TransitionNone, set.Apply(UnverifiedResult(tx, errors.New("bad signature"))))
			require.True(t, prior.Equal(set))
		}
	}
}

func TestEntitlementSet_Transitions(t *testing.T) {
	revokedAt := time.Now()
	set := NewEntitlementSet()

	require.Equal(t, TransitionGranted, set.Apply(VerifiedResult(Transaction{ProductID: "a"})))
	require.Equal(t, TransitionNone, set.Apply(VerifiedResult(Transaction{ProductID: "a"})))
	require.Equal(t, TransitionRevoked, set.Apply(VerifiedResult(Transaction{ProductID: "a", RevokedAt: &revokedAt})))
	require.Equal(t, TransitionNone, set.Apply(VerifiedResult(Transaction{ProductID: "a", RevokedAt: &revokedAt})))

	// Malformed transactions without a product are dropped.
	require.Equal(t, TransitionNone, set.Apply(VerifiedResult(Transaction{ID: "x"})))
	require.Empty(t, set)
}

func TestEntitlementSet_ProductIDs(t *testing.T) {
	set := NewEntitlementSet("c", "a", "b")
	require.Equal(t, []string{"a", "b", "c"}, set.ProductIDs())

	var nilSet EntitlementSet
	require.NotNil(t, nilSet.Clone())
	require.Empty(t, nilSet.ProductIDs())
}
