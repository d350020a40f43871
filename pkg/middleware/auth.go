package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/menuboard/menuboard/pkg/contextkeys"
	"github.com/menuboard/menuboard/pkg/httputil"
)

// Roles recognized by the billing API
const (
	RoleSuperAdmin = "super_admin"
	RoleService    = "service"
)

// APIToken binds a bearer token to a named caller and role
type APIToken struct {
	Name  string
	Role  string
	Token string
}

// ParseAPITokens parses "name:role:token" entries separated by commas
func ParseAPITokens(s string) ([]APIToken, error) {
	var tokens []APIToken
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid API token entry %q: want name:role:token", redact(raw))
		}
		if parts[1] != RoleSuperAdmin && parts[1] != RoleService {
			return nil, fmt.Errorf("invalid role %q for API token %q", parts[1], parts[0])
		}
		tokens = append(tokens, APIToken{Name: parts[0], Role: parts[1], Token: parts[2]})
	}
	return tokens, nil
}

func redact(entry string) string {
	if i := strings.LastIndex(entry, ":"); i >= 0 {
		return entry[:i+1] + "***"
	}
	return "***"
}

type tokenEntry struct {
	digest [sha256.Size]byte
	caller contextkeys.Caller
}

// Authenticator resolves bearer tokens to callers
type Authenticator struct {
	tokens []tokenEntry
}

// NewAuthenticator creates an Authenticator for the given tokens
func NewAuthenticator(tokens []APIToken) *Authenticator {
	a := &Authenticator{}
	for _, t := range tokens {
		a.tokens = append(a.tokens, tokenEntry{
			digest: sha256.Sum256([]byte(t.Token)),
			caller: contextkeys.Caller{Name: t.Name, Role: t.Role},
		})
	}
	return a
}

// lookup compares against every token in constant time
func (a *Authenticator) lookup(token string) *contextkeys.Caller {
	digest := sha256.Sum256([]byte(token))
	var found *contextkeys.Caller
	for i := range a.tokens {
		if subtle.ConstantTimeCompare(digest[:], a.tokens[i].digest[:]) == 1 {
			caller := a.tokens[i].caller
			found = &caller
		}
	}
	return found
}

// Handler rejects requests without a valid "Authorization: Bearer" token
// and stores the caller in the request context
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		caller := a.lookup(parts[1])
		if caller == nil {
			httputil.WriteUnauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithCaller(r.Context(), caller)))
	})
}

// RequireRole allows the request only when the caller has one of roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := contextkeys.GetCaller(r.Context())
			if caller == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteForbidden(w, "insufficient permissions")
		})
	}
}
