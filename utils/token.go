package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer exchanges service credentials for an access token.
type TokenIssuer interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// TokenHolder keeps the service account token used on calls to other services.
// It is created once at startup and travels to handlers through the request context.
type TokenHolder struct {
	issuer   TokenIssuer
	username string
	password string

	mu    sync.Mutex
	token string
	now   func() time.Time
}

func NewTokenHolder(issuer TokenIssuer, username, password string) *TokenHolder {
	return &TokenHolder{issuer: issuer, username: username, password: password, now: time.Now}
}

// Token returns the cached token, logging in again when there is none or it has expired.
func (h *TokenHolder) Token(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.token != "" && !TokenExpired(h.token, h.now()) {
		return h.token, nil
	}
	return h.login(ctx)
}

// Refresh discards the cached token and logs in again. Called after a downstream 401.
func (h *TokenHolder) Refresh(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.token = ""
	return h.login(ctx)
}

func (h *TokenHolder) login(ctx context.Context) (string, error) {
	token, err := h.issuer.Login(ctx, h.username, h.password)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("identity service returned an empty access token")
	}
	h.token = token
	return token, nil
}

// TokenExpired reads the exp claim without verifying the signature; only the identity
// service can verify it. Opaque (non-JWT) tokens never expire locally.
func TokenExpired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	// 30s early so the token cannot expire mid-request
	return !now.Add(30 * time.Second).Before(claims.ExpiresAt.Time)
}

type tokenHolderKey struct{}

func WithTokenHolder(ctx context.Context, h *TokenHolder) context.Context {
	return context.WithValue(ctx, tokenHolderKey{}, h)
}

// TokenHolderFrom returns nil when the context carries no holder.
func TokenHolderFrom(ctx context.Context) *TokenHolder {
	h, _ := ctx.Value(tokenHolderKey{}).(*TokenHolder)
	return h
}
