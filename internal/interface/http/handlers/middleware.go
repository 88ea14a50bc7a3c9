package handlers

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth checks a staff API key against a bcrypt hash. Keys that pass
// are remembered by their sha256 digest so bcrypt runs once per key.
type APIKeyAuth struct {
	headerName string
	hash       []byte
	onDenied   func(w http.ResponseWriter, r *http.Request, code, message string)
	compare    func(hash, key []byte) error
	verified   sync.Map // [sha256.Size]byte -> struct{}
}

// NewAPIKeyAuth creates an authenticator. An empty hash disables the check.
// onDenied writes the 401 response; nil falls back to a plain JSON body.
func NewAPIKeyAuth(headerName, hash string, onDenied func(w http.ResponseWriter, r *http.Request, code, message string)) *APIKeyAuth {
	if headerName == "" {
		headerName = "X-API-Key"
	}
	if onDenied == nil {
		onDenied = func(w http.ResponseWriter, _ *http.Request, code, message string) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"` + code + `","message":"` + message + `"}}`))
		}
	}
	return &APIKeyAuth{
		headerName: headerName,
		hash:       []byte(strings.TrimSpace(hash)),
		onDenied:   onDenied,
		compare:    bcrypt.CompareHashAndPassword,
	}
}

// Enabled reports whether a hash is configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.hash) > 0
}

// IsValid checks key against the configured hash.
func (a *APIKeyAuth) IsValid(key string) bool {
	if !a.Enabled() {
		return true
	}
	digest := sha256.Sum256([]byte(key))
	if _, ok := a.verified.Load(digest); ok {
		return true
	}
	// Only matching keys are stored.
	if a.compare(a.hash, []byte(key)) != nil {
		return false
	}
	a.verified.Store(digest, struct{}{})
	return true
}

// Middleware rejects requests without a valid key. The key is read from the
// configured header or from an Authorization Bearer token.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.headerName)
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" {
			a.onDenied(w, r, "MISSING_API_KEY", "API key is required")
			return
		}
		if !a.IsValid(key) {
			a.onDenied(w, r, "INVALID_API_KEY", "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HashAPIKey returns the bcrypt hash to put in STAFF_API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HEADER MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// NoCacheMiddleware prevents caching of API responses.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimitMiddleware caps request bodies at maxBytes. Reads past the
// limit fail with *http.MaxBytesError.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain applies middlewares so the first one is outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ChainHandler chains middleware and wraps a final handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}
