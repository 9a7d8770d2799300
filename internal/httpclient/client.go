package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxSnippetBytes bounds how much of an error response body is kept.
const MaxSnippetBytes = 1024

// AuthProvider injects credentials into outgoing requests.
type AuthProvider interface {
	InjectHeader(ctx context.Context, req *http.Request) error
}

// RequestBuilder builds requests against a fixed API base URL.
type RequestBuilder struct {
	base         *url.URL
	headers      http.Header
	authProvider AuthProvider
}

// NewRequestBuilder validates baseURL and headers. provider may be nil.
func NewRequestBuilder(baseURL string, headers map[string]string, provider AuthProvider) (*RequestBuilder, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", baseURL)
	}

	hdrs := http.Header{}
	for key, value := range headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		hdrs.Set(canonicalKey, value)
	}

	return &RequestBuilder{base: base, headers: hdrs, authProvider: provider}, nil
}

// URL joins the escaped path segments onto the base URL.
func (b *RequestBuilder) URL(segments ...string) string {
	u := *b.base
	path := strings.TrimRight(u.Path, "/")
	rawPath := strings.TrimRight(u.EscapedPath(), "/")
	for _, seg := range segments {
		path += "/" + seg
		rawPath += "/" + url.PathEscape(seg)
	}
	u.Path = path
	u.RawPath = rawPath
	return u.String()
}

// Build creates a body-less request for the given path segments, with the
// builder's headers and credentials applied.
func (b *RequestBuilder) Build(ctx context.Context, method string, segments ...string) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, b.URL(segments...), nil)
	if err != nil {
		return nil, err
	}
	for key, values := range b.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if b.authProvider != nil {
		if err := b.authProvider.InjectHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("auth provider inject header: %w", err)
		}
	}
	return req, nil
}

// ReadSnippet reads at most MaxSnippetBytes from r and drains the rest.
func ReadSnippet(r io.Reader) (string, error) {
	snippet, err := io.ReadAll(io.LimitReader(r, MaxSnippetBytes))
	_, _ = io.Copy(io.Discard, r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(snippet)), nil
}

// NewClient returns an HTTP client with pooled keep-alive connections.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
