package zaptec

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// expiryBuffer keeps a cached token from being used right before it expires.
const expiryBuffer = 5 * time.Minute

// TokenCache manages the access token for the configured Zaptec account.
type TokenCache struct {
	api      *APIClient
	username string
	password string
	logger   *zap.Logger

	mu     sync.RWMutex
	token  string
	expiry time.Time
	group  singleflight.Group
	now    func() time.Time
}

// NewTokenCache creates a cache for one set of credentials.
func NewTokenCache(api *APIClient, username, password string, logger *zap.Logger) *TokenCache {
	return &TokenCache{
		api:      api,
		username: username,
		password: password,
		logger:   logger,
		now:      time.Now,
	}
}

// Configured reports whether credentials were provided.
func (tc *TokenCache) Configured() bool {
	return tc.username != "" && tc.password != ""
}

// Token returns a cached token or fetches a new one. Concurrent callers
// share a single refresh.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.RLock()
	token, expiry := tc.token, tc.expiry
	tc.mu.RUnlock()

	if token != "" && tc.now().Add(expiryBuffer).Before(expiry) {
		return token, nil
	}

	v, err, _ := tc.group.Do("token", func() (any, error) {
		authResp, err := tc.api.Authenticate(ctx, tc.username, tc.password)
		if err != nil {
			return "", err
		}

		tc.mu.Lock()
		tc.token = authResp.AccessToken
		tc.expiry = tc.now().Add(time.Duration(authResp.ExpiresIn) * time.Second)
		tc.mu.Unlock()

		tc.logger.Info("obtained new zaptec access token", zap.Int("expires_in_seconds", authResp.ExpiresIn))
		return authResp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
