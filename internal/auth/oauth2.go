package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OAuth2ClientCredentialsProvider fetches tokens with the OAuth2 client
// credentials grant and caches them until shortly before expiry. Concurrent
// callers share a single in-flight fetch.
type OAuth2ClientCredentialsProvider struct {
	tokenURL            string
	clientID            string
	clientSecret        string
	scopes              []string
	refreshBeforeExpiry time.Duration
	httpClient          *http.Client

	mu              sync.Mutex
	cachedToken     string
	tokenExpiry     time.Time
	fetchInProgress bool
	fetchCond       *sync.Cond
}

type oauth2TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

// NewOAuth2ClientCredentialsProvider creates a client credentials provider.
// A nil httpClient gets a client with a 30s timeout.
func NewOAuth2ClientCredentialsProvider(
	tokenURL string,
	clientID string,
	clientSecret string,
	scopes []string,
	refreshBeforeExpiry time.Duration,
	httpClient *http.Client,
) (*OAuth2ClientCredentialsProvider, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return nil, fmt.Errorf("token url is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	p := &OAuth2ClientCredentialsProvider{
		tokenURL:            tokenURL,
		clientID:            clientID,
		clientSecret:        clientSecret,
		scopes:              scopes,
		refreshBeforeExpiry: refreshBeforeExpiry,
		httpClient:          httpClient,
	}
	p.fetchCond = sync.NewCond(&p.mu)
	return p, nil
}

func (p *OAuth2ClientCredentialsProvider) validLocked() bool {
	return p.cachedToken != "" && time.Now().Before(p.tokenExpiry)
}

// Token returns a cached token or fetches a fresh one.
func (p *OAuth2ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.validLocked() {
		return p.cachedToken, nil
	}
	for p.fetchInProgress {
		p.fetchCond.Wait()
		if p.validLocked() {
			return p.cachedToken, nil
		}
	}

	p.fetchInProgress = true
	p.mu.Unlock()
	token, expiresIn, err := p.fetchToken(ctx)
	p.mu.Lock()
	p.fetchInProgress = false
	p.fetchCond.Broadcast()

	if err != nil {
		return "", err
	}
	p.cachedToken = token
	p.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - p.refreshBeforeExpiry)
	return p.cachedToken, nil
}

func (p *OAuth2ClientCredentialsProvider) fetchToken(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(p.scopes) > 0 {
		form.Set("scope", strings.Join(p.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var tokenResp oauth2TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.Error != "" {
		return "", 0, fmt.Errorf("oauth2 error: %s - %s", tokenResp.Error, tokenResp.ErrorDesc)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, fmt.Errorf("no access token in response")
	}
	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}

// InjectHeader sets the current token as a bearer credential.
func (p *OAuth2ClientCredentialsProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	setBearer(req, token)
	return nil
}

// Close drops idle token endpoint connections.
func (p *OAuth2ClientCredentialsProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
