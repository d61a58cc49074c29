package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/endpointops/go-deployutils/stepconf"
)

const (
	tokenFetchRetries = 3
	tokenFetchWait    = 5 * time.Second
	// earlyExpiry shaves refresh time off the advertised token lifetime so a
	// token handed out by AccessToken is never on the verge of expiring.
	earlyExpiry = 10 * time.Second
	// defaultTokenLifetime is assumed when the service omits expires_in.
	defaultTokenLifetime = 300 * time.Second
)

// TokenProvider hands out a bearer token for the distribution service API.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenRejectedError means the service refused the client credentials.
type TokenRejectedError struct {
	StatusCode int
	Body       string
}

func (e *TokenRejectedError) Error() string {
	return fmt.Sprintf("token request rejected (HTTP %d): %s", e.StatusCode, e.Body)
}

// Provider implements the OAuth2 client-credentials flow against
// {baseURL}/oauth2/token and caches the token until shortly before expiry.
// Safe for concurrent use.
type Provider struct {
	baseURL      string
	clientID     string
	clientSecret stepconf.Secret
	httpClient   *http.Client
	logger       log.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

// NewProvider ...
func NewProvider(baseURL, clientID string, clientSecret stepconf.Secret, logger log.Logger) *Provider {
	return &Provider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
		now:          time.Now,
	}
}

// AccessToken returns a cached token while it is still fresh and fetches a
// new one otherwise.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.expiry) {
		return p.token, nil
	}

	return p.fetchToken(ctx)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *Provider) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", string(p.clientSecret))

	var tokenResp tokenResponse
	err := retry.Times(tokenFetchRetries).Wait(tokenFetchWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			p.logger.Warnf("Retrying token request (attempt %d)", attempt+1)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("create token request: %w", err), true
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("send token request: %w", err), false
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			rejectErr := &TokenRejectedError{StatusCode: resp.StatusCode, Body: string(body)}
			// 5xx may be transient, anything else will not change on retry
			return rejectErr, resp.StatusCode < 500
		}

		if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
			return fmt.Errorf("decode token response: %w", err), true
		}
		return nil, false
	})
	if err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response contains no access_token")
	}

	lifetime := defaultTokenLifetime
	if tokenResp.ExpiresIn > 0 {
		lifetime = time.Duration(tokenResp.ExpiresIn) * time.Second
	}
	if lifetime > earlyExpiry {
		lifetime -= earlyExpiry
	}

	p.token = tokenResp.AccessToken
	p.expiry = p.now().Add(lifetime)
	p.logger.Debugf("Obtained access token, valid for %s", lifetime)

	return p.token, nil
}
