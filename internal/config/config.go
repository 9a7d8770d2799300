package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/uits-lms/macrovars/internal/macro"
)

type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

type Config struct {
	Canvas       CanvasConfig      `mapstructure:"canvas"`
	Auth         AuthConfig        `mapstructure:"auth"`
	Roles        RolesConfig       `mapstructure:"roles"`
	SUDS         SUDSConfig        `mapstructure:"suds"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	Mapper       map[string]string `mapstructure:"mapper"`
	CallerRoles  []string          `mapstructure:"caller_roles"`
	Template     string            `mapstructure:"template"`
	TemplateFile string            `mapstructure:"template_file"`
	Feeder       FeederConfig      `mapstructure:"feeder"`
	Concurrency  int               `mapstructure:"concurrency"`
	Output       string            `mapstructure:"output"`
	Format       OutputFormat      `mapstructure:"format"`
	LogErrors    bool              `mapstructure:"log_errors"`
	ConfigFile   string            `mapstructure:"-"`
}

type CanvasConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Rate    int               `mapstructure:"rate"`    // lookups per second, 0 = unlimited
	Retries int               `mapstructure:"retries"` // extra attempts for throttled or failed lookups
	Headers map[string]string `mapstructure:"headers"`
}

type AuthType string

const (
	AuthTypeStaticToken             AuthType = "static_token"
	AuthTypeOAuth2ClientCredentials AuthType = "oauth2_client_credentials"
)

type AuthConfig struct {
	Type                AuthType      `mapstructure:"type"`
	TokenURL            string        `mapstructure:"token_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	Scopes              []string      `mapstructure:"scopes"`
	StaticToken         string        `mapstructure:"static_token"`
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry"`
}

// EffectiveType resolves an unset type: a static token implies static_token.
func (a AuthConfig) EffectiveType() AuthType {
	if a.Type != "" {
		return a.Type
	}
	if strings.TrimSpace(a.StaticToken) != "" {
		return AuthTypeStaticToken
	}
	return ""
}

type RolesConfig struct {
	// Qualifying roles trigger enrichment. Empty means the learner role.
	Qualifying []string `mapstructure:"qualifying"`
}

type SUDSConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
	Init   bool   `mapstructure:"init"` // create the class table if missing
}

// Enabled reports whether a class directory is configured.
func (s SUDSConfig) Enabled() bool {
	return strings.TrimSpace(s.DSN) != ""
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, directly or via
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether trace context is sent to Canvas. It
// defaults to on whenever tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type FeederConfig struct {
	Path string `mapstructure:"path"`
	Type string `mapstructure:"type"` // "csv" or "json"
}

// MapperValues builds the macro mapper from the configured fields.
func (c Config) MapperValues() macro.Mapper {
	return macro.FromRecord(c.Mapper)
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if base := strings.TrimSpace(c.Canvas.BaseURL); base != "" {
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, fmt.Sprintf("canvas base_url %q must be an absolute http(s) URL", base))
		}
	}
	if c.Canvas.Timeout < 0 {
		issues = append(issues, "canvas timeout must be >= 0")
	}
	if c.Canvas.Rate < 0 {
		issues = append(issues, "canvas rate must be >= 0")
	}
	if c.Canvas.Retries < 0 {
		issues = append(issues, "canvas retries must be >= 0")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if strings.TrimSpace(c.Template) != "" && strings.TrimSpace(c.TemplateFile) != "" {
		issues = append(issues, "template and template_file are mutually exclusive")
	}

	switch c.Format {
	case "", FormatText, FormatJSON, FormatYAML:
	default:
		issues = append(issues, fmt.Sprintf("format %q is not supported (use text, json or yaml)", c.Format))
	}

	issues = append(issues, validateAuthConfig(c.Auth)...)
	issues = append(issues, validateSUDSConfig(c.SUDS)...)
	issues = append(issues, validateFeederConfig(c.Feeder)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(c.Canvas.BaseURL)), "http://") && c.Auth.EffectiveType() != "" {
		fmt.Fprintln(os.Stderr, "WARNING: Canvas credentials will be sent over plain HTTP.")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateAuthConfig(auth AuthConfig) []string {
	var issues []string
	switch auth.EffectiveType() {
	case "":
	case AuthTypeStaticToken:
		if strings.TrimSpace(auth.StaticToken) == "" {
			issues = append(issues, "auth: static_token is required for static_token auth")
		}
	case AuthTypeOAuth2ClientCredentials:
		if strings.TrimSpace(auth.TokenURL) == "" {
			issues = append(issues, "auth: token_url is required for oauth2_client_credentials")
		}
		if strings.TrimSpace(auth.ClientID) == "" {
			issues = append(issues, "auth: client_id is required for oauth2_client_credentials")
		}
		if strings.TrimSpace(auth.ClientSecret) == "" {
			issues = append(issues, "auth: client_secret is required for oauth2_client_credentials")
		}
	default:
		issues = append(issues, fmt.Sprintf("auth: type %q is not supported", auth.Type))
	}
	if auth.RefreshBeforeExpiry < 0 {
		issues = append(issues, "auth: refresh_before_expiry must be >= 0")
	}
	return issues
}

func validateSUDSConfig(s SUDSConfig) []string {
	if !s.Enabled() {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "sqlite", "postgres":
		return nil
	case "":
		return []string{"suds: driver is required when dsn is set"}
	default:
		return []string{fmt.Sprintf("suds: driver %q is not supported (use sqlite or postgres)", s.Driver)}
	}
}

func validateFeederConfig(f FeederConfig) []string {
	if strings.TrimSpace(f.Path) == "" {
		return nil
	}
	switch f.Type {
	case "", "csv", "json":
		return nil
	default:
		return []string{fmt.Sprintf("feeder: type %q is not supported (use csv or json)", f.Type)}
	}
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol %q is not supported (use grpc or http)", t.Protocol))
	}
	return issues
}
