package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flipchat-iapkit/push"
)

// StoreFactory returns an empty token store.
type StoreFactory func() push.TokenStore

func RunStoreTests(t *testing.T, newStore StoreFactory) {
	for _, tf := range []func(t *testing.T, s push.TokenStore){
		testAddAndGetTokens,
		testUpdateExistingToken,
		testDeleteToken,
		testMultipleUsers,
	} {
		tf(t, newStore())
	}
}

func testAddAndGetTokens(t *testing.T, store push.TokenStore) {
	ctx := context.Background()

	// Initially no tokens
	tokens, err := store.GetTokens(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, tokens)

	require.NoError(t, store.AddToken(ctx, "user1", "device1", push.TokenTypeFCMApns, "token1"))
	require.NoError(t, store.AddToken(ctx, "user1", "device2", push.TokenTypeFCMAndroid, "token2"))

	tokens, err = store.GetTokens(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	tokenMap := make(map[string]push.Token)
	for _, token := range tokens {
		tokenMap[token.AppInstallID] = token
	}

	assert.Equal(t, "token1", tokenMap["device1"].Token)
	assert.Equal(t, push.TokenTypeFCMApns, tokenMap["device1"].Type)
	assert.Equal(t, "token2", tokenMap["device2"].Token)
	assert.Equal(t, push.TokenTypeFCMAndroid, tokenMap["device2"].Type)
}

func testUpdateExistingToken(t *testing.T, store push.TokenStore) {
	ctx := context.Background()

	require.NoError(t, store.AddToken(ctx, "user1", "device1", push.TokenTypeFCMApns, "token1"))
	require.NoError(t, store.AddToken(ctx, "user1", "device1", push.TokenTypeFCMApns, "token2"))

	tokens, err := store.GetTokens(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
	assert.Equal(t, "token2", tokens[0].Token)
}

func testDeleteToken(t *testing.T, store push.TokenStore) {
	ctx := context.Background()

	require.NoError(t, store.AddToken(ctx, "user1", "device1", push.TokenTypeFCMApns, "token1"))

	// A matching token of another type is left alone.
	require.NoError(t, store.DeleteToken(ctx, push.TokenTypeFCMAndroid, "token1"))
	tokens, err := store.GetTokens(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, tokens, 1)

	require.NoError(t, store.DeleteToken(ctx, push.TokenTypeFCMApns, "token1"))
	tokens, err = store.GetTokens(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func testMultipleUsers(t *testing.T, store push.TokenStore) {
	ctx := context.Background()

	require.NoError(t, store.AddToken(ctx, "user1", "device1", push.TokenTypeFCMApns, "token1"))
	require.NoError(t, store.AddToken(ctx, "user2", "device1", push.TokenTypeFCMApns, "token2"))

	tokens, err := store.GetTokens(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
	assert.Equal(t, "token1", tokens[0].Token)

	tokens, err = store.GetTokens(ctx, "user2")
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
	assert.Equal(t, "token2", tokens[0].Token)
}
