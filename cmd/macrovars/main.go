package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/uits-lms/macrovars/internal/canvas"
	"github.com/uits-lms/macrovars/internal/config"
	"github.com/uits-lms/macrovars/internal/metrics"
	"github.com/uits-lms/macrovars/internal/replacement"
	"github.com/uits-lms/macrovars/internal/roles"
	"github.com/uits-lms/macrovars/internal/suds"
	"github.com/uits-lms/macrovars/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "macrovars",
		Short:         "Substitute LMS macro variables into template text",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newRenderCommand(),
		newBatchCommand(),
		newCheckCommand(),
		newTokensCommand(),
	)
	return root
}

// loadConfig builds and validates the configuration for a subcommand whose
// flags were registered with config.RegisterFlags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader().FromFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readTemplate returns the inline template or the contents of the template
// file. A template file of "-" is read from stdin.
func readTemplate(cfg *config.Config, stdin io.Reader) (string, error) {
	if cfg.Template != "" {
		return cfg.Template, nil
	}
	path := strings.TrimSpace(cfg.TemplateFile)
	switch path {
	case "":
		return "", fmt.Errorf("a template is required (use --template or --template-file)")
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read template from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read template: %w", err)
		}
		return string(data), nil
	}
}

// app holds the collaborators shared by the render and batch commands.
type app struct {
	service   *replacement.Service
	resolver  *roles.DefaultResolver
	collector *metrics.Collector
	tracer    *tracing.Provider
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *stderrLogger) (_ *app, err error) {
	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a := &app{
		resolver:  roles.NewDefaultResolver(cfg.Roles.Qualifying...),
		collector: metrics.NewCollector(),
		tracer:    tp,
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	opts := replacement.Options{
		Resolver: a.resolver,
		Logger:   logger,
	}

	if strings.TrimSpace(cfg.Canvas.BaseURL) != "" {
		provider, err := buildAuthProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("canvas auth: %w", err)
		}
		canvasOpts := canvas.Options{
			BaseURL:       cfg.Canvas.BaseURL,
			Headers:       cfg.Canvas.Headers,
			Timeout:       cfg.Canvas.Timeout,
			RatePerSecond: cfg.Canvas.Rate,
			Tracer:        tp.Tracer(),
			Propagate:     tp.ShouldPropagate(),
			Metrics:       a.collector,
			Retry:         canvas.NewRetryPolicy(cfg.Canvas.Retries),
		}
		if provider != nil {
			canvasOpts.Auth = provider
			a.closers = append(a.closers, provider.Close)
		}
		client, err := canvas.NewClient(canvasOpts)
		if err != nil {
			return nil, err
		}
		opts.Courses = client
	}

	if cfg.SUDS.Enabled() {
		dir, err := suds.Open(cfg.SUDS.Driver, cfg.SUDS.DSN, suds.Options{
			Tracer:  tp.Tracer(),
			Metrics: a.collector,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, dir.Close)
		if cfg.SUDS.Init {
			if err := dir.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		opts.Directory = dir
	}

	a.service = replacement.New(opts)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[macrovars] tracing shutdown: %v\n", err)
	}
}
