package push

import (
	"context"
	"sync"
)

type TokenType uint8

const (
	TokenTypeUnknown TokenType = iota
	TokenTypeFCMApns
	TokenTypeFCMAndroid
)

func (t TokenType) String() string {
	switch t {
	case TokenTypeFCMApns:
		return "fcm_apns"
	case TokenTypeFCMAndroid:
		return "fcm_android"
	default:
		return "unknown"
	}
}

// Token represents a push notification token.
//
// Tokens are bound to a (user, device) pair, identified by the AppInstallID.
type Token struct {
	Type         TokenType
	Token        string
	AppInstallID string
}

type TokenStore interface {
	// GetTokens returns all tokens for a user.
	GetTokens(ctx context.Context, userID string) ([]Token, error)

	// AddToken adds a token for a user.
	//
	// If the token already exists for the same user and device, it will be updated.
	AddToken(ctx context.Context, userID, appInstallID string, tokenType TokenType, token string) error

	// DeleteToken deletes a token for a user.
	DeleteToken(ctx context.Context, tokenType TokenType, token string) error
}

type Memory struct {
	sync.RWMutex

	// Map of userID -> map of appInstallID -> Token
	tokens map[string]map[string]Token
}

func NewMemory() *Memory {
	return &Memory{
		tokens: make(map[string]map[string]Token),
	}
}

func (m *Memory) GetTokens(_ context.Context, userID string) ([]Token, error) {
	m.RLock()
	defer m.RUnlock()

	userTokens, ok := m.tokens[userID]
	if !ok {
		return nil, nil
	}

	tokens := make([]Token, 0, len(userTokens))
	for _, token := range userTokens {
		tokens = append(tokens, token)
	}

	return tokens, nil
}

func (m *Memory) AddToken(_ context.Context, userID, appInstallID string, tokenType TokenType, token string) error {
	m.Lock()
	defer m.Unlock()

	userTokens, ok := m.tokens[userID]
	if !ok {
		userTokens = make(map[string]Token)
		m.tokens[userID] = userTokens
	}

	userTokens[appInstallID] = Token{
		Type:         tokenType,
		Token:        token,
		AppInstallID: appInstallID,
	}

	return nil
}

func (m *Memory) DeleteToken(_ context.Context, tokenType TokenType, token string) error {
	m.Lock()
	defer m.Unlock()

	// Need to scan all users and devices to find matching token.
	for _, userTokens := range m.tokens {
		for appInstallID, existingToken := range userTokens {
			if existingToken.Type == tokenType && existingToken.Token == token {
				delete(userTokens, appInstallID)
			}
		}
	}

	return nil
}
