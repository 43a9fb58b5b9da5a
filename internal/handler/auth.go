package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/climbing-points/internal/config"
	"github.com/climbing-points/internal/domain"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	tokenKey    contextKey = "session_token"
)

// callerFrom returns the signed-in identity, or nil
func callerFrom(ctx context.Context) *domain.Identity {
	id, _ := ctx.Value(identityKey).(*domain.Identity)
	return id
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// identify attaches the session identity to the request context. Requests
// without a valid session proceed anonymously; the engines reject them
// where a caller is required.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := h.sessions.Get(r.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) {
				next.ServeHTTP(w, r)
				return
			}
			h.logger.Error("session lookup failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, domain.ErrStoreUnavailable)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// EnabledProviders returns the identity providers offered at sign-in.
// Google is on unless disabled, the rest are opt-in, the mock provider
// needs dev mode, and Google is the fallback when nothing else is left.
func EnabledProviders(cfg *config.AuthConfig) ([]domain.Provider, error) {
	enabled := map[domain.Provider]bool{}
	if !cfg.DisableGoogle {
		enabled[domain.ProviderGoogle] = true
	}
	for _, name := range cfg.EnabledProviders {
		p, err := domain.ParseProvider(name)
		if err != nil {
			return nil, fmt.Errorf("auth.enabled_providers: %w", err)
		}
		if p.Offline() && !cfg.DevMode {
			continue
		}
		enabled[p] = true
	}
	if cfg.DevMode {
		enabled[domain.ProviderMock] = true
	}

	var providers []domain.Provider
	for _, p := range domain.Providers() {
		if enabled[p] {
			providers = append(providers, p)
		}
	}
	if len(providers) == 0 {
		providers = []domain.Provider{domain.ProviderGoogle}
	}
	return providers, nil
}

// ListProviders returns the capabilities of every enabled provider
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := EnabledProviders(&h.auth)
	if err != nil {
		h.logger.Error("invalid provider configuration", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	caps := make([]domain.ProviderCapability, 0, len(providers))
	for _, p := range providers {
		if c, ok := p.Capability(); ok {
			caps = append(caps, c)
		}
	}
	h.writeSuccess(w, caps)
}

// MockSignIn issues a session for a throwaway offline identity. Only
// available in dev mode.
func (h *Handler) MockSignIn(w http.ResponseWriter, r *http.Request) {
	if !h.auth.DevMode {
		h.writeError(w, http.StatusNotFound, domain.ErrUnsupportedProvider)
		return
	}

	identity := domain.Identity{
		ID:          fmt.Sprintf("mock-user-%d", h.now().UnixMilli()),
		DisplayName: "Dev Test User",
		Email:       "dev@example.com",
		Provider:    domain.ProviderMock,
	}
	token, err := h.sessions.Create(r.Context(), identity)
	if err != nil {
		h.logger.Error("failed to create mock session", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrStoreUnavailable)
		return
	}

	h.logger.Info("mock session created", "user_id", identity.ID)
	h.writeSuccess(w, map[string]interface{}{
		"token": token,
		"user":  identity,
	})
}

// SignOut ends the caller's session
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenKey).(string)
	if token == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}

	if err := h.sessions.Delete(r.Context(), token); err != nil {
		h.logger.Error("failed to delete session", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrStoreUnavailable)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "signed_out"})
}
