package push

import (
	"context"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// maxMulticastTokens is the most registration tokens a single
// MulticastMessage may carry.
const maxMulticastTokens = 500

// Pusher delivers data-only pushes that wake an app in the background
// without showing anything to the user.
type Pusher interface {
	SendSilentPushes(ctx context.Context, threadID string, users []string, data map[string]string) error
}

type NoOpPusher struct{}

func (n *NoOpPusher) SendSilentPushes(_ context.Context, _ string, _ []string, _ map[string]string) error {
	return nil
}

type FCMPusher struct {
	log    *zap.Logger
	tokens TokenStore
	client FCMClient
}

type FCMClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

func NewFCMPusher(log *zap.Logger, tokens TokenStore, client FCMClient) *FCMPusher {
	return &FCMPusher{
		log:    log,
		tokens: tokens,
		client: client,
	}
}

func (p *FCMPusher) SendSilentPushes(ctx context.Context, threadID string, users []string, data map[string]string) error {
	pushTokens, err := p.getTokenList(ctx, users)
	if err != nil {
		return err
	}

	if len(pushTokens) > maxMulticastTokens {
		p.log.Warn("Dropping push, too many tokens", zap.Int("num_tokens", len(pushTokens)))
		return nil
	}

	if len(pushTokens) == 0 {
		p.log.Debug("Dropping push, no tokens for users", zap.Int("num_users", len(users)))
		return nil
	}

	tokens := extractTokens(pushTokens)
	message := buildSilentMessage(threadID, tokens, data)

	response, err := p.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return err
	}

	p.log.Debug("Send pushes", zap.Int("success", response.SuccessCount), zap.Int("failed", response.FailureCount))
	p.processResponse(response, pushTokens, tokens)

	return nil
}

func buildSilentMessage(threadID string, tokens []string, data map[string]string) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ThreadID:         threadID,
					ContentAvailable: true,
				},
			},
		},
		Data: data,
	}
}

func (p *FCMPusher) processResponse(response *messaging.BatchResponse, pushTokens []Token, tokens []string) {
	var invalidTokens []Token

	for i, resp := range response.Responses {
		if resp == nil || resp.Success {
			continue
		}

		if messaging.IsUnregistered(resp.Error) {
			invalidTokens = append(invalidTokens, pushTokens[i])
		} else {
			p.log.Warn("Failed to send push notification",
				zap.Error(resp.Error),
				zap.String("token", tokens[i]),
			)
		}
	}

	if len(invalidTokens) > 0 {
		go func() {
			ctx := context.Background()
			for _, token := range invalidTokens {
				if err := p.tokens.DeleteToken(ctx, token.Type, token.Token); err != nil {
					p.log.Warn("Failed to remove invalid token", zap.Error(err))
				}
			}
			p.log.Debug("Removed invalid tokens", zap.Int("count", len(invalidTokens)))
		}()
	}
}

func (p *FCMPusher) getTokenList(ctx context.Context, users []string) ([]Token, error) {
	var allPushTokens []Token
	for _, user := range users {
		tokens, err := p.tokens.GetTokens(ctx, user)
		if err != nil {
			return nil, err
		}
		allPushTokens = append(allPushTokens, tokens...)
	}
	return allPushTokens, nil
}

func extractTokens(pushTokens []Token) []string {
	tokens := make([]string, len(pushTokens))
	for i, token := range pushTokens {
		tokens[i] = token.Token
	}
	return tokens
}

// Config holds configuration for entitlement pushes.
type Config struct {
	// Enabled turns entitlement pushes on.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// UserID is the user whose devices are notified.
	UserID string `mapstructure:"user_id" default:""`
	// CredentialsPath points at a Firebase service account JSON file.
	CredentialsPath string `mapstructure:"credentials_path" default:""`
	// Tokens is a comma separated list of FCM registration tokens for the
	// user's devices.
	Tokens []string `mapstructure:"tokens" default:""`
}
