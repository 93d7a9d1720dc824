package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader is accepted as an alternative to an Authorization bearer token.
const APIKeyHeader = "X-API-Key"

var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// keyring holds digests of the configured keys so lookups compare fixed-length values in constant time.
type keyring [][sha256.Size]byte

func newKeyring(apiKeys []string) keyring {
	ring := make(keyring, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			ring = append(ring, sha256.Sum256([]byte(k)))
		}
	}
	return ring
}

func (k keyring) allows(key string) bool {
	sum := sha256.Sum256([]byte(key))
	match := 0
	for i := range k {
		match |= subtle.ConstantTimeCompare(sum[:], k[i][:])
	}
	return match == 1
}

// presentedKey extracts the caller's key. ok is false when a header is present but malformed.
func presentedKey(r *http.Request) (key string, ok bool, msg string) {
	if v := r.Header.Get(APIKeyHeader); v != "" {
		return v, true, ""
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false, "missing api key: send Authorization: Bearer <key> or " + APIKeyHeader
	}
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false, "authorization header must use Bearer scheme"
	}
	return strings.TrimSpace(token), true, ""
}

// BearerAuthMiddleware rejects requests without a configured API key.
// Health and metrics stay public. With no keys configured it is a pass-through.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	ring := newKeyring(apiKeys)

	return func(next http.Handler) http.Handler {
		if len(ring) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key, ok, msg := presentedKey(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
				return
			}
			if !ring.allows(key) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
