package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"pinboard/pkg/apperr"
	. "pinboard/pkg/common"
)

type Purpose string

const (
	PurposeVerify Purpose = "verify"
	PurposeReset  Purpose = "reset"

	tokensNS = "pinboard:tokens:"
	tokenLen = 32
)

var ErrBadToken = apperr.Validation("Token is invalid or has expired.")

func tokenKey(purpose Purpose, token string) string {
	return tokensNS + string(purpose) + ":" + token
}

// IssueToken stores a one-time token for userId that lives for ttl.
func (sm *SessionManager) IssueToken(ctx context.Context, purpose Purpose, userId string, ttl time.Duration) (string, error) {
	token, err := NewToken(tokenLen)
	if err != nil {
		return "", err
	}

	conn, err := sm.pool.GetContext(ctx)
	if err != nil {
		return "", fmt.Errorf("session/tokens: can't get Redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SET", tokenKey(purpose, token), userId, "EX", int64(ttl.Seconds())); err != nil {
		return "", fmt.Errorf("session/tokens: failed SET token: %w", err)
	}
	return token, nil
}

// ConsumeToken returns the user the token was issued for and deletes it,
// so a token works exactly once.
func (sm *SessionManager) ConsumeToken(ctx context.Context, purpose Purpose, token string) (string, error) {
	if token == "" {
		return "", ErrBadToken
	}

	conn, err := sm.pool.GetContext(ctx)
	if err != nil {
		return "", fmt.Errorf("session/tokens: can't get Redis connection: %w", err)
	}
	defer conn.Close()

	userId, err := redis.String(conn.Do("GETDEL", tokenKey(purpose, token)))
	if errors.Is(err, redis.ErrNil) {
		return "", ErrBadToken
	}
	if err != nil {
		return "", fmt.Errorf("session/tokens: failed GETDEL token: %w", err)
	}
	return userId, nil
}
