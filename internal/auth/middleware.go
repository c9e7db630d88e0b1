package auth

import (
	"net/http"
)

// Authenticator validates bearer tokens for write operations. It accepts the
// static admin key or any issued key whose bcrypt hash is registered.
type Authenticator struct {
	adminKey   string
	hashedKeys []string
}

// NewAuthenticator creates an Authenticator. adminKey is the static key from
// configuration; hashedKeys are bcrypt hashes of issued keys, may be empty.
func NewAuthenticator(adminKey string, hashedKeys []string) *Authenticator {
	return &Authenticator{adminKey: adminKey, hashedKeys: hashedKeys}
}

// Authenticate reports whether the Authorization header carries a valid key.
// The second return value is an error message suitable for the response body.
func (a *Authenticator) Authenticate(authHeader string) (bool, string) {
	token := ExtractBearerToken(authHeader)
	if token == "" {
		return false, "missing bearer token"
	}

	if a.adminKey != "" && VerifyAPIKeyConstantTime(token, a.adminKey) {
		return true, ""
	}

	// bcrypt hashes are non-deterministic, so each registered hash has to be
	// checked against the presented token.
	for _, hash := range a.hashedKeys {
		if VerifyAPIKey(token, hash) {
			return true, ""
		}
	}

	return false, "invalid token"
}

// RequireAuth is a middleware that rejects unauthenticated requests with 401.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, msg := a.Authenticate(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, msg, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
