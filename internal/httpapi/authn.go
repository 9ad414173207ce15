package httpapi

import (
	"net/http"
	"strings"

	"taskflow.dev/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth verifies the bearer token and attaches the caller's identity to the request.
// With allowQuery set the token may also come from the token query parameter.
func (a *API) withAuth(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r.Header.Get(authHeader))
			if err != nil && allowQuery {
				if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
					token, err = q, nil
				}
			}
			if err != nil {
				a.fail(w, r, err)
				return
			}

			id, err := a.opts.Auth.Authenticate(r.Context(), token)
			if err != nil {
				a.fail(w, r, err)
				return
			}

			ctx := auth.ContextWithIdentity(r.Context(), id)
			ctx = auth.ContextWithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", auth.ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", auth.ErrInvalidToken
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", auth.ErrMissingToken
	}
	return token, nil
}
