package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/scorenft/internal/adapters/auth"
)

// Authenticator verifies call tokens against the request they arrived with.
type Authenticator interface {
	Authenticate(token string, req auth.Request) (auth.Claims, error)
}

type authMiddleware struct {
	authenticator Authenticator
}

func newAuthMiddleware(a Authenticator) *authMiddleware {
	return &authMiddleware{authenticator: a}
}

// wrap attaches the authenticated caller to the request context. A request
// without an Authorization header proceeds anonymously and is refused by
// any operation that needs a caller; a present but invalid, mismatched or
// replayed token is a 401. The body is read once to check the token's
// digest and handed on unchanged.
func (m *authMiddleware) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || m.authenticator == nil {
			next(w, r)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated",
				fmt.Errorf("%w: expected a Bearer token", ErrUnauthenticated))
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		claims, err := m.authenticator.Authenticate(token, auth.Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body,
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", fmt.Errorf("%w: %v", ErrUnauthenticated, err))
			return
		}
		next(w, r.WithContext(auth.WithCaller(r.Context(), claims.Caller)))
	}
}
