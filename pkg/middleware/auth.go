package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pinboard/pkg/apperr"
	. "pinboard/pkg/common"
	"pinboard/pkg/logger"
	"pinboard/pkg/sessions"
	"pinboard/pkg/user"
)

//go:generate mockgen -source=auth.go -destination=mock_auth.go -package=middleware

type (
	IUserRepo interface {
		GetById(context.Context, string) (*user.User, error)
	}
	ISessionManager interface {
		UserFromToken(context.Context, string) (*user.User, error)
	}
	Auth struct {
		UserRepo       IUserRepo
		SessionManager ISessionManager
	}
)

func NewAuthMiddleware(sm ISessionManager, ur IUserRepo) *Auth {
	return &Auth{
		UserRepo:       ur,
		SessionManager: sm,
	}
}

// Middleware resolves the viewer. Requests without a usable token go on
// anonymously; handlers that need a user answer 401 themselves.
func (auth Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessions.TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		userFromToken, err := auth.SessionManager.UserFromToken(r.Context(), token)
		if err != nil {
			logger.Log(r.Context()).Infow("auth: ignoring token", "reason", err.Error())
			next.ServeHTTP(w, r)
			return
		}

		repoCtx, repoCtxCancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer repoCtxCancel()
		u, err := auth.UserRepo.GetById(repoCtx, userFromToken.Id)
		if errors.Is(err, apperr.ErrNotFound) {
			// The account is gone but the browser still holds its cookie.
			logger.Log(r.Context()).Infow("auth: token of a deleted user", "user", userFromToken.Id)
			sessions.ClearCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			WriteError(w, r, apperr.Internal("failed loading the current user", err))
			return
		}

		next.ServeHTTP(w, r.WithContext(sessions.WithUser(r.Context(), u)))
	})
}

// RequireAuth answers 401 unless Middleware resolved a user.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := sessions.GetAuthUser(r.Context()); err != nil {
			WriteError(w, r, err)
			return
		}
		next(w, r)
	}
}
