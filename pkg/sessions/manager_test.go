package sessions

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinboard/pkg/apperr"
	"pinboard/pkg/user"
)

// fakeRedis understands the handful of commands the session manager sends.
type fakeRedis struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	keys   map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: map[string]map[string]string{}, keys: map[string]string{}}
}

func (f *fakeRedis) Close() error { return nil }
func (f *fakeRedis) Err() error   { return nil }
func (f *fakeRedis) Send(string, ...interface{}) error {
	return fmt.Errorf("fakeRedis: Send not supported")
}
func (f *fakeRedis) Flush() error                 { return nil }
func (f *fakeRedis) Receive() (interface{}, error) { return nil, fmt.Errorf("fakeRedis: Receive not supported") }

func (f *fakeRedis) Do(cmd string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := make([]string, len(args))
	for i, a := range args {
		s[i] = fmt.Sprint(a)
	}

	switch strings.ToUpper(cmd) {
	case "", "PING":
		return nil, nil
	case "HSET":
		if f.hashes[s[0]] == nil {
			f.hashes[s[0]] = map[string]string{}
		}
		f.hashes[s[0]][s[1]] = s[2]
		return int64(1), nil
	case "HGET":
		v, ok := f.hashes[s[0]][s[1]]
		if !ok {
			return nil, nil
		}
		return []byte(v), nil
	case "HGETALL":
		reply := []interface{}{}
		for k, v := range f.hashes[s[0]] {
			reply = append(reply, []byte(k), []byte(v))
		}
		return reply, nil
	case "HDEL":
		delete(f.hashes[s[0]], s[1])
		return int64(1), nil
	case "DEL":
		delete(f.hashes, s[0])
		delete(f.keys, s[0])
		return int64(1), nil
	case "SET":
		f.keys[s[0]] = s[1]
		return "OK", nil
	case "GETDEL":
		v, ok := f.keys[s[0]]
		if !ok {
			return nil, nil
		}
		delete(f.keys, s[0])
		return []byte(v), nil
	}
	return nil, fmt.Errorf("fakeRedis: unknown command %s", cmd)
}

func newTestManager(t *testing.T) (*SessionManager, *fakeRedis) {
	fake := newFakeRedis()
	pool := &redis.Pool{Dial: func() (redis.Conn, error) { return fake, nil }}
	t.Cleanup(func() { pool.Close() })
	return NewSessionManager("test-secret", pool), fake
}

var testUser = &user.User{Id: "64b7f0c2a1b2c3d4e5f60718", Username: "pike"}

func TestTokenRoundTrip(t *testing.T) {
	sm, fake := newTestManager(t)
	ctx := context.Background()

	token, err := sm.CreateToken(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, fake.hashes[sessionsKey(testUser.Id)], 1)

	t.Run("bearer header", func(t *testing.T) {
		u, err := sm.UserFromToken(ctx, "Bearer "+token)
		require.NoError(t, err)
		assert.Equal(t, testUser.Id, u.Id)
		assert.Equal(t, testUser.Username, u.Username)
	})

	t.Run("raw cookie value", func(t *testing.T) {
		_, err := sm.UserFromToken(ctx, token)
		assert.NoError(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewSessionManager("other-secret", sm.pool)
		_, err := other.UserFromToken(ctx, token)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("empty header", func(t *testing.T) {
		_, err := sm.UserFromToken(ctx, "")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("destroyed session", func(t *testing.T) {
		require.NoError(t, sm.DestroySession(ctx, token))
		_, err := sm.UserFromToken(ctx, token)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestCheckRedis(t *testing.T) {
	sm, fake := newTestManager(t)
	ctx := context.Background()
	key := sessionsKey(testUser.Id)

	t.Run("expired", func(t *testing.T) {
		require.NoError(t, sm.AddToRedis(ctx, testUser.Id, "old", time.Now().Add(-time.Hour).Unix()))
		ok, err := sm.CheckRedis(ctx, testUser.Id, "old")
		assert.False(t, ok)
		assert.Error(t, err)
	})

	t.Run("prolonged when close to expiry", func(t *testing.T) {
		require.NoError(t, sm.AddToRedis(ctx, testUser.Id, "soon", time.Now().Add(time.Hour).Unix()))
		ok, err := sm.CheckRedis(ctx, testUser.Id, "soon")
		require.NoError(t, err)
		assert.True(t, ok)

		exp, _ := strconv.ParseInt(fake.hashes[key]["soon"], 10, 64)
		assert.Greater(t, exp, time.Now().Add(80*24*time.Hour).Unix())
	})

	t.Run("unknown session", func(t *testing.T) {
		ok, err := sm.CheckRedis(ctx, testUser.Id, "missing")
		assert.False(t, ok)
		assert.Error(t, err)
	})
}

func TestCleanupUserSessions(t *testing.T) {
	sm, fake := newTestManager(t)
	ctx := context.Background()
	key := sessionsKey(testUser.Id)

	require.NoError(t, sm.AddToRedis(ctx, testUser.Id, "expired", time.Now().Add(-time.Minute).Unix()))
	require.NoError(t, sm.AddToRedis(ctx, testUser.Id, "alive", time.Now().Add(time.Hour).Unix()))

	require.NoError(t, sm.CleanupUserSessions(ctx, testUser.Id))
	_, hasExpired := fake.hashes[key]["expired"]
	_, hasAlive := fake.hashes[key]["alive"]
	assert.False(t, hasExpired)
	assert.True(t, hasAlive)

	require.NoError(t, sm.DestroyUserSessions(ctx, testUser.Id))
	assert.Empty(t, fake.hashes[key])
}

func TestOneTimeTokens(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	token, err := sm.IssueToken(ctx, PurposeVerify, testUser.Id, 24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, token, tokenLen)

	_, err = sm.ConsumeToken(ctx, PurposeReset, token)
	assert.ErrorIs(t, err, apperr.ErrValidation, "token is bound to its purpose")

	userId, err := sm.ConsumeToken(ctx, PurposeVerify, token)
	require.NoError(t, err)
	assert.Equal(t, testUser.Id, userId)

	_, err = sm.ConsumeToken(ctx, PurposeVerify, token)
	assert.ErrorIs(t, err, apperr.ErrValidation, "token works once")

	_, err = sm.ConsumeToken(ctx, PurposeVerify, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetAuthUser(t *testing.T) {
	_, err := GetAuthUser(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, "", ViewerID(context.Background()))

	ctx := WithUser(context.Background(), testUser)
	u, err := GetAuthUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, testUser, u)
	assert.Equal(t, testUser.Id, ViewerID(ctx))
}
