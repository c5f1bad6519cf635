package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Simplici0/filaprint/internal/user"
)

const (
	sessionCookieName = "session"
	sessionTTL        = 7 * 24 * time.Hour
)

type identity struct {
	ID       int64
	Username string
	Role     user.Role
}

func (i identity) isAdmin() bool {
	return i.Role == user.RoleAdmin
}

type sessionClaims struct {
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func newAuthService(secret string, secure bool) *authService {
	return &authService{secret: []byte(secret), secure: secure, now: time.Now}
}

func (a *authService) issue(u user.User) (string, error) {
	now := a.now()
	claims := sessionClaims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

func (a *authService) verify(token string) (identity, error) {
	var claims sessionClaims
	keyFunc := func(*jwt.Token) (any, error) { return a.secret, nil }
	_, err := jwt.ParseWithClaims(token, &claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return identity{}, err
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return identity{}, errors.New("session subject is not a user id")
	}
	return identity{ID: id, Username: claims.Username, Role: claims.Role}, nil
}

func (a *authService) setSessionCookie(w http.ResponseWriter, u user.User) error {
	token, err := a.issue(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (a *authService) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

type identityKey struct{}

func withIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFrom(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}

func isPublicPath(path string) bool {
	switch path {
	case "/login", "/register", "/healthz", "/metrics":
		return true
	}
	return false
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			current  identity
			signedIn bool
		)
		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			current, err = s.auth.verify(cookie.Value)
			if err != nil {
				s.log.Debug("rejecting session cookie", zap.Error(err))
				s.auth.clearSessionCookie(w)
			} else {
				signedIn = true
			}
		}

		if isPublicPath(r.URL.Path) {
			if signedIn && (r.URL.Path == "/login" || r.URL.Path == "/register") {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if !signedIn {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), current)))
	})
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current, ok := identityFrom(r.Context())
		if !ok || !current.isAdmin() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// currentUser returns the caller's identity or writes 401.
func currentUser(w http.ResponseWriter, r *http.Request) (identity, bool) {
	current, ok := identityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, failure{Reason: reasonUnauthorized})
		return identity{}, false
	}
	return current, true
}
