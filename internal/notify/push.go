package notify

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// providerTokenLifetime is how long a signed provider token is reused
// before re-signing. Push gateways accept tokens for an hour; refreshing
// a few minutes early avoids rejected requests at the boundary.
const providerTokenLifetime = 55 * time.Minute

// HTTPPushConfig configures the HTTP push relay client.
type HTTPPushConfig struct {
	// Endpoint is the push gateway base URL.
	Endpoint string
	// KeyID identifies the signing key at the provider.
	KeyID string
	// TeamID is the issuer claim for provider tokens.
	TeamID string
	// SigningKey signs provider tokens (ES256).
	SigningKey *ecdsa.PrivateKey
	// HTTPClient defaults to a client with a 10 s timeout.
	HTTPClient *http.Client
	// Logger for relay activity.
	Logger *slog.Logger
}

// HTTPPush relays notifications to a push gateway over HTTP, authenticating
// with short-lived ES256 provider tokens.
type HTTPPush struct {
	config HTTPPushConfig

	mu          sync.Mutex
	cachedToken string
	tokenIssued time.Time
}

// NewHTTPPush creates an HTTP push channel.
func NewHTTPPush(config HTTPPushConfig) (*HTTPPush, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("push endpoint is required")
	}
	if config.SigningKey == nil {
		return nil, fmt.Errorf("push signing key is required")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &HTTPPush{config: config}, nil
}

// pushRequest is the gateway's JSON body.
type pushRequest struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Category string            `json:"category"`
	Payload  map[string]string `json:"payload,omitempty"`
}

// Send delivers one notification to the device token. Failures are
// returned for the dispatcher to record and swallow.
func (p *HTTPPush) Send(ctx context.Context, token, title, body string, payload map[string]string, category string) error {
	bearer, err := p.providerToken()
	if err != nil {
		return fmt.Errorf("sign provider token: %w", err)
	}

	reqBody, err := json.Marshal(pushRequest{
		Title:    title,
		Body:     body,
		Category: category,
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}

	url := p.config.Endpoint + "/v1/push/" + token
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}

// providerToken returns a cached signed token, re-signing when it nears
// expiry.
func (p *HTTPPush) providerToken() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.cachedToken != "" && now.Sub(p.tokenIssued) < providerTokenLifetime {
		return p.cachedToken, nil
	}

	claims := jwt.MapClaims{
		"iss": p.config.TeamID,
		"iat": now.Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = p.config.KeyID

	signed, err := tok.SignedString(p.config.SigningKey)
	if err != nil {
		return "", err
	}
	p.cachedToken = signed
	p.tokenIssued = now
	return signed, nil
}
