package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeRunJobs is the JWT scope that authorizes triggering jobs.
const ScopeRunJobs = "jobs:run"

type serviceClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// RequireServiceToken rejects requests under JobsPrefix that do not carry a
// bearer credential for secret: either the secret itself or an HS256 JWT
// signed with it and granting ScopeRunJobs. An empty secret rejects every
// request.
func RequireServiceToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, JobsPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeUnauthorized(w, "authentication required")
				return
			}
			if err := verifyServiceToken(token, secret); err != nil {
				slog.WarnContext(r.Context(), "rejected job trigger", "path", r.URL.Path, "error", err)
				writeUnauthorized(w, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func verifyServiceToken(token, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("job secret not configured")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
		return nil
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &serviceClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	if !slices.Contains(strings.Fields(claims.Scope), ScopeRunJobs) {
		return errors.New("token lacks " + ScopeRunJobs + " scope")
	}
	return nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(newJobError(http.StatusUnauthorized, msg))
}
