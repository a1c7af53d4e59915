package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// TokenSource caches an OAuth2 bearer token obtained with the
// client-credentials grant. A token is expired when it is absent or when
// its expiry is set and has passed; a response without expires_in yields
// a token that never expires by time and is replaced only through
// Invalidate (the 401/403 path).
type TokenSource struct {
	client   string
	secret   string
	tokenURL string
	hc       *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time

	now func() time.Time
}

func NewTokenSource(clientID, secret, tokenURL string, hc *http.Client) *TokenSource {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenSource{client: clientID, secret: secret, tokenURL: tokenURL, hc: hc, now: time.Now}
}

// Token returns the cached bearer token, refreshing it first when expired.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && (t.expiry.IsZero() || t.now().Before(t.expiry)) {
		return t.token, nil
	}
	if err := t.refresh(ctx); err != nil {
		return "", err
	}
	return t.token, nil
}

// Invalidate drops the cached token so the next Token call refreshes.
// Called by the session on 401/403 responses.
func (t *TokenSource) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiry = time.Time{}
	t.mu.Unlock()
}

func (t *TokenSource) refresh(ctx context.Context) error {
	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.client, t.secret)

	res, err := t.hc.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("token refresh: status %d", res.StatusCode)
	}

	var payload struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return fmt.Errorf("token refresh: decode: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("token refresh: no access_token in response")
	}

	t.token = payload.AccessToken
	if payload.ExpiresIn > 0 {
		t.expiry = t.now().Add(time.Duration(payload.ExpiresIn * float64(time.Second)))
	} else {
		t.expiry = time.Time{}
	}
	return nil
}
