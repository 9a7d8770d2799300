package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// mapperFlags binds a CLI flag to a mapper field key.
var mapperFlags = []struct {
	flag  string
	key   string
	usage string
}{
	{"first-name", "user_first_name", "User first name"},
	{"last-name", "user_last_name", "User last name"},
	{"campus", "sis_campus", "SIS campus code"},
	{"term-id", "sis_term_id", "SIS term id"},
	{"sis-course-id", "sis_course_id", "SIS course id"},
	{"network-id", "user_network_id", "User network id"},
	{"user-role", "user_role", "User role substituted for the role token"},
	{"user-id", "user_id", "User id"},
	{"class-number", "class_number", "SIS class number"},
	{"canvas-course-id", "canvas_course_id", "Canvas course id used for enrichment lookups"},
}

// RegisterFlags registers all CLI flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "macrovars",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (YAML, JSON or TOML)")

	// Template flags
	flags.String("template", "", "Inline template text")
	flags.String("template-file", "", "Path to template file ('-' reads stdin)")

	// Mapper flags
	for _, mf := range mapperFlags {
		flags.String(mf.flag, "", mf.usage)
	}
	flags.StringSlice("role", nil, "Caller role used to decide enrichment (repeatable)")
	flags.StringSlice("qualifying-role", nil, "Role that triggers enrichment (repeatable, default Learner)")

	// Canvas flags
	flags.String("canvas-url", "", "Canvas base URL (e.g. https://school.instructure.com)")
	flags.Duration("canvas-timeout", 30*time.Second, "Per-lookup Canvas timeout")
	flags.Int("canvas-rate", 0, "Canvas lookups per second (0 means unlimited)")
	flags.Int("canvas-retries", 0, "Retries for throttled or failed Canvas lookups")
	flags.StringToString("canvas-header", nil, "Extra Canvas request header key=value (repeatable)")

	// Auth flags
	flags.String("auth-type", "", "Canvas auth type: static_token or oauth2_client_credentials")
	flags.String("canvas-token", "", "Canvas access token (prefer MACROVARS_CANVAS_TOKEN)")
	flags.String("auth-token-url", "", "OAuth2 token endpoint")
	flags.String("auth-client-id", "", "OAuth2 client id")
	flags.String("auth-client-secret", "", "OAuth2 client secret (prefer MACROVARS_AUTH_CLIENT_SECRET)")
	flags.StringSlice("auth-scopes", nil, "OAuth2 scopes (repeatable)")

	// SIS class directory flags
	flags.String("suds-driver", "", "Class directory SQL driver: sqlite or postgres")
	flags.String("suds-dsn", "", "Class directory DSN (prefer MACROVARS_SUDS_DSN)")
	flags.Bool("suds-init", false, "Create the class directory table if it does not exist")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sample rate between 0.0 and 1.0")
	flags.String("tracing-service-name", "", "Service name reported to the collector")

	// Batch flags
	flags.String("feeder-path", "", "Path to CSV or JSON roster, one mapper per record")
	flags.String("feeder-type", "", "Type of roster file: 'csv' or 'json'")
	flags.IntP("concurrency", "c", 4, "Number of roster records rendered concurrently")

	// Output flags
	flags.StringP("output", "o", "", "Write results to this file instead of stdout")
	flags.String("format", string(FormatText), "Output format: text, json or yaml")
	flags.Bool("log-errors", false, "Log each failed lookup to stderr")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	str := func(name string, dst *string) error {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			return nil
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
		return nil
	}
	slice := func(name string, dst *[]string) error {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			return nil
		}
		val, err := fs.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}

	for _, binding := range []struct {
		name string
		dst  *string
	}{
		{"template-file", &cfg.TemplateFile},
		{"canvas-url", &cfg.Canvas.BaseURL},
		{"canvas-token", &cfg.Auth.StaticToken},
		{"auth-token-url", &cfg.Auth.TokenURL},
		{"auth-client-id", &cfg.Auth.ClientID},
		{"auth-client-secret", &cfg.Auth.ClientSecret},
		{"suds-dsn", &cfg.SUDS.DSN},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
		{"feeder-path", &cfg.Feeder.Path},
		{"output", &cfg.Output},
	} {
		if err := str(binding.name, binding.dst); err != nil {
			return err
		}
	}

	// Template text is used verbatim, surrounding whitespace included.
	if fs.Lookup("template") != nil && fs.Changed("template") {
		val, err := fs.GetString("template")
		if err != nil {
			return err
		}
		cfg.Template = val
		cfg.TemplateFile = ""
	}
	if fs.Changed("template-file") {
		cfg.Template = ""
	}

	var authType, sudsDriver, tracingProtocol, feederType, format string
	for _, binding := range []struct {
		name string
		dst  *string
	}{
		{"auth-type", &authType},
		{"suds-driver", &sudsDriver},
		{"tracing-protocol", &tracingProtocol},
		{"feeder-type", &feederType},
		{"format", &format},
	} {
		if err := str(binding.name, binding.dst); err != nil {
			return err
		}
	}
	if authType != "" {
		cfg.Auth.Type = AuthType(strings.ToLower(authType))
	}
	if sudsDriver != "" {
		cfg.SUDS.Driver = strings.ToLower(sudsDriver)
	}
	if tracingProtocol != "" && fs.Changed("tracing-protocol") {
		cfg.Tracing.Protocol = strings.ToLower(tracingProtocol)
	}
	if feederType != "" {
		cfg.Feeder.Type = strings.ToLower(feederType)
	}
	if format != "" {
		cfg.Format = OutputFormat(strings.ToLower(format))
	}

	for _, mf := range mapperFlags {
		var val string
		if err := str(mf.flag, &val); err != nil {
			return err
		}
		if fs.Changed(mf.flag) {
			if cfg.Mapper == nil {
				cfg.Mapper = map[string]string{}
			}
			cfg.Mapper[mf.key] = val
		}
	}

	if err := slice("role", &cfg.CallerRoles); err != nil {
		return err
	}
	if err := slice("qualifying-role", &cfg.Roles.Qualifying); err != nil {
		return err
	}
	if err := slice("auth-scopes", &cfg.Auth.Scopes); err != nil {
		return err
	}

	if fs.Changed("canvas-header") {
		hdrs, err := fs.GetStringToString("canvas-header")
		if err != nil {
			return err
		}
		if cfg.Canvas.Headers == nil {
			cfg.Canvas.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Canvas.Headers[k] = v
		}
	}
	if fs.Changed("canvas-timeout") {
		val, err := fs.GetDuration("canvas-timeout")
		if err != nil {
			return err
		}
		cfg.Canvas.Timeout = val
	}
	if fs.Changed("canvas-rate") {
		val, err := fs.GetInt("canvas-rate")
		if err != nil {
			return err
		}
		cfg.Canvas.Rate = val
	}
	if fs.Changed("canvas-retries") {
		val, err := fs.GetInt("canvas-retries")
		if err != nil {
			return err
		}
		cfg.Canvas.Retries = val
	}
	if fs.Changed("concurrency") {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	for _, binding := range []struct {
		name string
		dst  *bool
	}{
		{"suds-init", &cfg.SUDS.Init},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"log-errors", &cfg.LogErrors},
	} {
		if !fs.Changed(binding.name) {
			continue
		}
		val, err := fs.GetBool(binding.name)
		if err != nil {
			return err
		}
		*binding.dst = val
	}
	return nil
}
