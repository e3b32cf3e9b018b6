package sessions

import (
	"net/http"
	"strings"
	"time"
)

const CookieName = "jwt"

// SetCookie hands the session token to browsers as an httpOnly cookie.
func SetCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(sessionTTL),
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// TokenFromRequest returns the bearer token from the Authorization header or,
// failing that, from the session cookie. The result is always in
// "Bearer <token>" form or empty.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); strings.HasPrefix(h, "Bearer ") {
		return h
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return "Bearer " + c.Value
	}
	return ""
}
