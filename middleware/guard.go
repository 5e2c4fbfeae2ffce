package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mobiauth/mobiauth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validation result injected by [Guard]
// for the current request.
func AuthResultFromContext(ctx context.Context) (*mobiauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*mobiauth.AuthResult)
	return res, ok
}

// Guard wraps a handler with bearer-token authentication. Requests without
// a valid, non-revoked access token are rejected with 401; for the rest,
// the validation result is available through [AuthResultFromContext].
func Guard(engine *mobiauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
