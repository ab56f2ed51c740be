package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RobNhz/zaptec-invoice-app/crypto"
)

type contextKey string

const (
	UsernameKey    contextKey = "username"
	VendorTokenKey contextKey = "vendor_token"
)

// MaxSessionTTL caps the session lifetime regardless of the vendor token.
const MaxSessionTTL = 24 * time.Hour

// SessionClaims carries the vendor access token sealed with a key derived
// from the signing secret.
type SessionClaims struct {
	Username    string `json:"username"`
	VendorToken string `json:"vendor_token"`
	jwt.RegisteredClaims
}

// IssueSession signs a session for username that expires with the vendor
// token, at most after MaxSessionTTL.
func IssueSession(secret, username, vendorToken string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 || ttl > MaxSessionTTL {
		ttl = MaxSessionTTL
	}

	key, err := crypto.DeriveKey(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	sealed, err := crypto.Encrypt(vendorToken, key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to seal vendor token: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Username:    username,
		VendorToken: sealed,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseSession verifies a session token and returns the username and the
// unsealed vendor token.
func ParseSession(secret, tokenString string) (username, vendorToken string, err error) {
	claims := &SessionClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", err
	}

	key, err := crypto.DeriveKey(secret)
	if err != nil {
		return "", "", err
	}
	vendorToken, err = crypto.Decrypt(claims.VendorToken, key)
	if err != nil {
		return "", "", errors.New("invalid session payload")
	}
	return claims.Username, vendorToken, nil
}

// AuthMiddleware reads a bearer session token. With required set, requests
// without a valid token are rejected; otherwise a missing token passes and
// only an invalid one is rejected.
func AuthMiddleware(secret string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					writeUnauthorized(w, "Missing authorization header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				writeUnauthorized(w, "Invalid authorization header")
				return
			}

			username, vendorToken, err := ParseSession(secret, tokenString)
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UsernameKey, username)
			ctx = context.WithValue(ctx, VendorTokenKey, vendorToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VendorToken returns the vendor token of the authenticated session, if any.
func VendorToken(ctx context.Context) string {
	token, _ := ctx.Value(VendorTokenKey).(string)
	return token
}

func Username(ctx context.Context) string {
	username, _ := ctx.Value(UsernameKey).(string)
	return username
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
