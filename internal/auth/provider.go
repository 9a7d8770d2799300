// Package auth supplies bearer tokens for Canvas API calls.
package auth

import (
	"context"
	"net/http"
)

// Provider obtains a bearer token and sets it on outgoing Canvas requests.
type Provider interface {
	// Token returns a valid token, from cache when possible.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the Authorization header on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}
