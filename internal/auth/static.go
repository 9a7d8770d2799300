package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrEmptyToken is returned when a static token provider has no token.
var ErrEmptyToken = errors.New("static token is empty")

// StaticTokenProvider returns a pre-issued Canvas access token, such as a
// developer key token issued to the integration account.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider creates a provider for token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: strings.TrimSpace(token)}
}

// Token returns the configured token without any network calls.
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", ErrEmptyToken
	}
	return p.token, nil
}

// InjectHeader sets the static token as a bearer credential.
func (p *StaticTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	setBearer(req, token)
	return nil
}

// Close is a no-op.
func (p *StaticTokenProvider) Close() error {
	return nil
}
