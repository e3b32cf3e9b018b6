package sessions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/gomodule/redigo/redis"

	"pinboard/pkg/apperr"
	. "pinboard/pkg/common"
	"pinboard/pkg/logger"
	"pinboard/pkg/user"
)

const (
	redisNS = "pinboard:sessions:"

	sessionTTL = 90 * 24 * time.Hour
	// Sessions expiring sooner than this are prolonged on use.
	prolongWithin = 24 * time.Hour
)

type (
	sessionKey string

	SessionManager struct {
		secret []byte
		pool   *redis.Pool
	}

	jwtClaims struct {
		User user.UserFromToken `json:"user"`
		jwt.StandardClaims
	}
)

const SessionKey sessionKey = "authenticatedUser"

var ErrNoAuth = apperr.Unauthorized("You are not logged in! Please log in to get access.")

func NewSessionManager(secret string, pool *redis.Pool) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		pool:   pool,
	}
}

// NewPool dials Redis lazily from a redis:// URL.
func NewPool(url string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(url)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func sessionsKey(userId string) string {
	return redisNS + userId
}

// Returns logged in user if the user from JWT token is valid
// and the session is valid.
func (sm *SessionManager) UserFromToken(ctx context.Context, authHeader string) (*user.User, error) {
	claims, err := sm.parse(authHeader)
	if err != nil {
		return nil, err
	}

	if _, err := sm.CheckRedis(ctx, claims.User.Id, claims.Id); err != nil {
		return nil, apperr.Unauthorized("Invalid token. Please log in again.")
	}

	return &user.User{Id: claims.User.Id, Username: claims.User.Username}, nil
}

func (sm *SessionManager) parse(authHeader string) (*jwtClaims, error) {
	if authHeader == "" {
		return nil, ErrNoAuth
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("sessions: unexpected signing method %v", token.Header["alg"])
			}
			return sm.secret, nil
		})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperr.Unauthorized("Token has expired. Please log in again.")
		}
		return nil, apperr.Unauthorized("Invalid token. Please log in again.")
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, apperr.Unauthorized("Invalid token. Please log in again.")
	}
	return claims, nil
}

// Goes through all user sessions and removes expired ones.
func (sm *SessionManager) CleanupUserSessions(ctx context.Context, userId string) error {
	conn, err := sm.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("session/manager: can't get Redis connection: %w", err)
	}
	defer conn.Close()

	sessions, err := redis.StringMap(conn.Do("HGETALL", sessionsKey(userId)))
	if err != nil {
		return fmt.Errorf("session/manager: can't HGETALL user sessions from Redis: %w", err)
	}

	nowTs := time.Now().Unix()
	for sessId, exp := range sessions {
		expTs, _ := strconv.ParseInt(exp, 10, 64)
		if nowTs > expTs {
			if _, err := conn.Do("HDEL", sessionsKey(userId), sessId); err != nil {
				return fmt.Errorf("session/manager: can't HDEL expired session: %w", err)
			}
			logger.Log(ctx).Debugw("session removed", "session", sessId, "expired_at", exp)
		}
	}

	return nil
}

func (sm *SessionManager) CheckRedis(ctx context.Context, userId, sessionId string) (bool, error) {
	conn, err := sm.pool.GetContext(ctx)
	if err != nil {
		return false, fmt.Errorf("session/manager: can't get Redis connection: %w", err)
	}
	defer conn.Close()

	expirationData, err := redis.Bytes(conn.Do("HGET", sessionsKey(userId), sessionId))
	if err != nil {
		return false, fmt.Errorf("session/manager: can't HGET from Redis: %w", err)
	}

	// Check user session for expiration
	expiredTs, _ := strconv.ParseInt(string(expirationData), 10, 64)
	nowTs := time.Now().Unix()
	if nowTs > expiredTs {
		return false, errors.New("session/manager: session has been expired")
	}

	// Prolongate session expiration time if it expires soon
	// because we don't want to kick off the active user.
	if expiredTs-nowTs < int64(prolongWithin.Seconds()) {
		newExpDate := time.Now().Add(sessionTTL).Unix()
		if err := sm.AddToRedis(ctx, userId, sessionId, newExpDate); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (sm *SessionManager) AddToRedis(ctx context.Context, userId, sessionId string, exp int64) error {
	conn, err := sm.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("session/manager: can't get Redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("HSET", sessionsKey(userId), sessionId, exp); err != nil {
		return fmt.Errorf("session/manager: failed HSET to Redis: %w", err)
	}
	return nil
}

func (sm *SessionManager) CreateToken(ctx context.Context, u *user.User) (string, error) {
	sessionID, err := NewToken(16)
	if err != nil {
		return "", err
	}
	data := jwtClaims{
		User: user.UserFromToken{Id: u.Id, Username: u.Username},
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(sessionTTL).Unix(),
			IssuedAt:  time.Now().Unix(),
			Id:        sessionID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, data).SignedString(sm.secret)
	if err != nil {
		return "", err
	}

	if err := sm.AddToRedis(ctx, u.Id, sessionID, data.ExpiresAt); err != nil {
		return ``, err
	}

	return token, nil
}

// DestroySession drops the session behind a token. Invalid tokens are ignored:
// there is nothing to log out from.
func (sm *SessionManager) DestroySession(ctx context.Context, authHeader string) error {
	claims, err := sm.parse(authHeader)
	if err != nil {
		return nil
	}

	conn, err := sm.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("session/manager: can't get Redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("HDEL", sessionsKey(claims.User.Id), claims.Id); err != nil {
		return fmt.Errorf("session/manager: failed HDEL session: %w", err)
	}
	return nil
}

// DestroyUserSessions logs the user out everywhere.
func (sm *SessionManager) DestroyUserSessions(ctx context.Context, userId string) error {
	conn, err := sm.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("session/manager: can't get Redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", sessionsKey(userId)); err != nil {
		return fmt.Errorf("session/manager: failed DEL sessions: %w", err)
	}
	return nil
}

func GetAuthUser(ctx context.Context) (*user.User, error) {
	u, ok := ctx.Value(SessionKey).(*user.User)
	if !ok || u == nil {
		return nil, ErrNoAuth
	}
	return u, nil
}

// ViewerID is the authenticated user's id or "" for anonymous requests.
func ViewerID(ctx context.Context) string {
	if u, err := GetAuthUser(ctx); err == nil {
		return u.Id
	}
	return ""
}

func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, SessionKey, u)
}
