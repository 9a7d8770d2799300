package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/uits-lms/macrovars/internal/macro"
)

// Environment fallbacks for secrets that should not be passed as flags.
const (
	EnvCanvasToken      = "MACROVARS_CANVAS_TOKEN"
	EnvAuthClientSecret = "MACROVARS_AUTH_CLIENT_SECRET"
	EnvSUDSDSN          = "MACROVARS_SUDS_DSN"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and the optional configuration file.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	if helpFlag := cmd.Flags().Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.FromFlags(cmd.Flags())
}

// FromFlags builds a Config from an already parsed flag set, such as the
// one a cobra subcommand hands to RunE.
func (Loader) FromFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Canvas: CanvasConfig{
			Timeout: 30 * time.Second,
			Headers: map[string]string{},
		},
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
		Mapper:      map[string]string{},
		Concurrency: 4,
		Format:      FormatText,
		ConfigFile:  configPath,
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	applyEnvFallbacks(cfg)

	cfg.Canvas.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Canvas.BaseURL), "/")
	if cfg.Mapper == nil {
		cfg.Mapper = map[string]string{}
	}
	return cfg, nil
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.Auth.StaticToken == "" {
		if v := os.Getenv(EnvCanvasToken); v != "" {
			cfg.Auth.StaticToken = v
		}
	}
	if cfg.Auth.ClientSecret == "" {
		if v := os.Getenv(EnvAuthClientSecret); v != "" {
			cfg.Auth.ClientSecret = v
		}
	}
	if cfg.SUDS.DSN == "" {
		if v := os.Getenv(EnvSUDSDSN); v != "" {
			cfg.SUDS.DSN = v
		}
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "canvas"); ok {
		canvas, err := parseCanvas(raw, cfg.Canvas)
		if err != nil {
			return fmt.Errorf("canvas: %w", err)
		}
		cfg.Canvas = canvas
	}

	if raw, ok := lookupSetting(settings, "auth"); ok {
		auth, err := parseAuth(raw)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		cfg.Auth = auth
	}

	if raw, ok := lookupSetting(settings, "roles"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("roles: %w", err)
		}
		if q, ok := lookupSetting(entry, "qualifying"); ok {
			list, err := asStringSlice(q)
			if err != nil {
				return fmt.Errorf("roles.qualifying: %w", err)
			}
			cfg.Roles.Qualifying = list
		}
	}

	if raw, ok := lookupSetting(settings, "suds"); ok {
		suds, err := parseSUDS(raw)
		if err != nil {
			return fmt.Errorf("suds: %w", err)
		}
		cfg.SUDS = suds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	if raw, ok := lookupSetting(settings, "mapper"); ok {
		fields, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("mapper: %w", err)
		}
		if cfg.Mapper == nil {
			cfg.Mapper = map[string]string{}
		}
		for k, v := range fields {
			cfg.Mapper[macro.NormalizeKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "caller_roles"); ok {
		list, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("caller_roles: %w", err)
		}
		cfg.CallerRoles = list
	}

	if raw, ok := lookupSetting(settings, "template"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("template: %w", err)
		}
		cfg.Template = val
	}

	if raw, ok := lookupSetting(settings, "template_file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("template_file: %w", err)
		}
		cfg.TemplateFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "feeder"); ok {
		feeder, err := parseFeeder(raw)
		if err != nil {
			return fmt.Errorf("feeder: %w", err)
		}
		cfg.Feeder = feeder
	}

	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		cfg.Concurrency = val
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			cfg.Format = OutputFormat(val)
		}
	}

	if raw, ok := lookupSetting(settings, "log_errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}

	return nil
}

func parseCanvas(value interface{}, canvas CanvasConfig) (CanvasConfig, error) {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return CanvasConfig{}, err
	}
	if raw, ok := lookupSetting(entry, "base_url", "url"); ok {
		val, err := asString(raw)
		if err != nil {
			return CanvasConfig{}, fmt.Errorf("base_url: %w", err)
		}
		canvas.BaseURL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return CanvasConfig{}, fmt.Errorf("timeout: %w", err)
		}
		canvas.Timeout = dur
	}
	if raw, ok := lookupSetting(entry, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return CanvasConfig{}, fmt.Errorf("rate: %w", err)
		}
		canvas.Rate = val
	}
	if raw, ok := lookupSetting(entry, "retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return CanvasConfig{}, fmt.Errorf("retries: %w", err)
		}
		canvas.Retries = val
	}
	if raw, ok := lookupSetting(entry, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return CanvasConfig{}, fmt.Errorf("headers: %w", err)
		}
		if canvas.Headers == nil {
			canvas.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			canvas.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}
	return canvas, nil
}

func parseAuth(value interface{}) (AuthConfig, error) {
	if value == nil {
		return AuthConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return AuthConfig{}, err
	}

	var auth AuthConfig
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("type: %w", err)
		}
		auth.Type = AuthType(strings.ToLower(strings.TrimSpace(val)))
	}
	for _, field := range []struct {
		keys []string
		dst  *string
	}{
		{[]string{"token_url"}, &auth.TokenURL},
		{[]string{"client_id"}, &auth.ClientID},
		{[]string{"client_secret"}, &auth.ClientSecret},
		{[]string{"static_token", "token"}, &auth.StaticToken},
	} {
		raw, ok := lookupSetting(settings, field.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("%s: %w", field.keys[0], err)
		}
		*field.dst = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "scopes"); ok {
		scopes, err := asStringSlice(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("scopes: %w", err)
		}
		auth.Scopes = scopes
	}
	if raw, ok := lookupSetting(settings, "refresh_before_expiry"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("refresh_before_expiry: %w", err)
		}
		auth.RefreshBeforeExpiry = dur
	}
	return auth, nil
}

func parseSUDS(value interface{}) (SUDSConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return SUDSConfig{}, err
	}
	var suds SUDSConfig
	if raw, ok := lookupSetting(settings, "driver"); ok {
		val, err := asString(raw)
		if err != nil {
			return SUDSConfig{}, fmt.Errorf("driver: %w", err)
		}
		suds.Driver = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "dsn"); ok {
		val, err := asString(raw)
		if err != nil {
			return SUDSConfig{}, fmt.Errorf("dsn: %w", err)
		}
		suds.DSN = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "init"); ok {
		val, err := asBool(raw)
		if err != nil {
			return SUDSConfig{}, fmt.Errorf("init: %w", err)
		}
		suds.Init = val
	}
	return suds, nil
}

func parseTracing(value interface{}, tracing TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tracing.Propagate = &val
	}
	return tracing, nil
}

func parseFeeder(value interface{}) (FeederConfig, error) {
	if value == nil {
		return FeederConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return FeederConfig{}, err
	}
	var feeder FeederConfig
	if raw, ok := lookupSetting(settings, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("path: %w", err)
		}
		feeder.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("type: %w", err)
		}
		feeder.Type = strings.ToLower(strings.TrimSpace(val))
	}
	return feeder, nil
}
