package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iapkit/push"
)

// FCMClient captures the messages sent for verification. Sends to tokens
// listed in Failing are reported back as failed.
type FCMClient struct {
	mu      sync.Mutex
	sent    []*messaging.MulticastMessage
	Failing map[string]bool
}

func (c *FCMClient) SendEachForMulticast(_ context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, message)

	response := &messaging.BatchResponse{
		Responses: make([]*messaging.SendResponse, len(message.Tokens)),
	}
	for i, token := range message.Tokens {
		if c.Failing[token] {
			response.FailureCount++
			response.Responses[i] = &messaging.SendResponse{Error: errors.New("quota exceeded")}
			continue
		}
		response.SuccessCount++
		response.Responses[i] = &messaging.SendResponse{Success: true, MessageID: fmt.Sprintf("msg-%d", i)}
	}
	return response, nil
}

func (c *FCMClient) Sent() []*messaging.MulticastMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*messaging.MulticastMessage(nil), c.sent...)
}

func RunPusherTests(t *testing.T, newStore StoreFactory) {
	for _, tf := range []func(t *testing.T, s push.TokenStore){
		testFCMPusher_SendSilentPush,
		testFCMPusher_NoTokens,
		testFCMPusher_KeepsTokensOnFailure,
	} {
		tf(t, newStore())
	}
}

func testFCMPusher_SendSilentPush(t *testing.T, store push.TokenStore) {
	ctx := context.Background()

	fcmClient := &FCMClient{}
	pusher := push.NewFCMPusher(zap.NewNop(), store, fcmClient)

	// Create 5 users with 2 tokens each
	users := make([]string, 5)
	for i := range users {
		users[i] = fmt.Sprintf("user%d", i)
		require.NoError(t, store.AddToken(ctx, users[i], fmt.Sprintf("install%d_1", i), push.TokenTypeFCMApns, fmt.Sprintf("token%d_1", i)))
		require.NoError(t, store.AddToken(ctx, users[i], fmt.Sprintf("install%d_2", i), push.TokenTypeFCMAndroid, fmt.Sprintf("token%d_2", i)))
	}

	data := map[string]string{"type": "refresh"}
	require.NoError(t, pusher.SendSilentPushes(ctx, "thread", users[:3], data))

	sent := fcmClient.Sent()
	require.Len(t, sent, 1)

	assert.Nil(t, sent[0].Notification)
	assert.Nil(t, sent[0].APNS.Payload.Aps.Alert)
	assert.True(t, sent[0].APNS.Payload.Aps.ContentAvailable)
	assert.Equal(t, "thread", sent[0].APNS.Payload.Aps.ThreadID)
	assert.Equal(t, "high", sent[0].Android.Priority)
	assert.Equal(t, data, sent[0].Data)
	assert.ElementsMatch(t, []string{
		"token0_1", "token0_2",
		"token1_1", "token1_2",
		"token2_1", "token2_2",
	}, sent[0].Tokens)
}

func testFCMPusher_NoTokens(t *testing.T, store push.TokenStore) {
	fcmClient := &FCMClient{}
	pusher := push.NewFCMPusher(zap.NewNop(), store, fcmClient)

	require.NoError(t, pusher.SendSilentPushes(context.Background(), "thread", []string{"nobody"}, nil))
	assert.Empty(t, fcmClient.Sent())
}

func testFCMPusher_KeepsTokensOnFailure(t *testing.T, store push.TokenStore) {
	ctx := context.Background()

	fcmClient := &FCMClient{Failing: map[string]bool{"token2": true}}
	pusher := push.NewFCMPusher(zap.NewNop(), store, fcmClient)

	require.NoError(t, store.AddToken(ctx, "user1", "device1", push.TokenTypeFCMApns, "token1"))
	require.NoError(t, store.AddToken(ctx, "user1", "device2", push.TokenTypeFCMApns, "token2"))

	require.NoError(t, pusher.SendSilentPushes(ctx, "thread", []string{"user1"}, nil))
	require.Len(t, fcmClient.Sent(), 1)

	// Only unregistered tokens are pruned.
	tokens, err := store.GetTokens(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}
