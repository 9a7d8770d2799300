package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uits-lms/macrovars/internal/batch"
	"github.com/uits-lms/macrovars/internal/config"
	"github.com/uits-lms/macrovars/internal/feeder"
	"github.com/uits-lms/macrovars/internal/macro"
	"github.com/uits-lms/macrovars/internal/metrics"
	"github.com/uits-lms/macrovars/internal/output"
)

func newRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Enrich one mapper and render a template with it",
		Args:  cobra.NoArgs,
		RunE:  runRender,
	}
	config.RegisterFlags(cmd)
	return cmd
}

// renderResult is the structured form of a render for json and yaml output.
type renderResult struct {
	Mapper macro.Mapper `json:"mapper" yaml:"mapper"`
	Roles  []string     `json:"roles,omitempty" yaml:"roles,omitempty"`
	Output string       `json:"output" yaml:"output"`
}

func runRender(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newStderrLogger(cmd.ErrOrStderr())

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tmpl, err := readTemplate(cfg, cmd.InOrStdin())
	if err != nil {
		return err
	}
	warnUnknownTokens(logger, tmpl)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	mapper := cfg.MapperValues()
	if mapper.CanvasCourseID != "" && !a.resolver.ShouldResolve(cfg.CallerRoles) {
		logger.Warn("roles [%s] do not qualify for enrichment (qualifying roles: %s); using mapper values as given",
			strings.Join(cfg.CallerRoles, ", "), strings.Join(a.resolver.Qualifying(), ", "))
	}
	rendered, err := a.service.Render(ctx, &mapper, cfg.CallerRoles, tmpl)
	if err != nil {
		return err
	}

	result := renderResult{Mapper: mapper, Roles: cfg.CallerRoles, Output: rendered}
	write := func(w io.Writer) error { return writeRenderResult(w, result, cfg.Format) }
	if cfg.Output != "" {
		return output.WriteFile(ctx, cfg.Output, write)
	}
	return write(cmd.OutOrStdout())
}

func writeRenderResult(w io.Writer, r renderResult, format config.OutputFormat) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := io.WriteString(w, r.Output)
		if err == nil && !strings.HasSuffix(r.Output, "\n") {
			_, err = io.WriteString(w, "\n")
		}
		return err
	}
}

func newBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Render a template for every record of a CSV or JSON roster",
		Args:  cobra.NoArgs,
		RunE:  runBatch,
	}
	config.RegisterFlags(cmd)
	cmd.Flags().Duration("progress", 0, "Print progress to stderr at this interval (0 disables)")
	return cmd
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newStderrLogger(cmd.ErrOrStderr())

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Feeder.Path) == "" {
		return fmt.Errorf("batch requires a roster (use --feeder-path)")
	}
	progressInterval, err := cmd.Flags().GetDuration("progress")
	if err != nil {
		return err
	}
	tmpl, err := readTemplate(cfg, cmd.InOrStdin())
	if err != nil {
		return err
	}
	warnUnknownTokens(logger, tmpl)

	roster, err := feeder.Open(cfg.Feeder.Path, cfg.Feeder.Type)
	if err != nil {
		return err
	}
	defer roster.Close()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	var reporter *output.ProgressReporter
	if progressInterval > 0 {
		reporter = output.NewProgressReporter(a.collector, roster.Len(), progressInterval, cmd.ErrOrStderr())
		reporter.Start()
	}

	started := time.Now()
	summary, runErr := batch.Run(ctx, roster, batch.Options{
		Concurrency:  cfg.Concurrency,
		Template:     tmpl,
		Defaults:     cfg.Mapper,
		DefaultRoles: cfg.CallerRoles,
		Renderer:     a.service,
		Logger:       logger,
		LogErrors:    cfg.LogErrors,
		OnResult: func(r batch.Result) {
			if reporter != nil {
				reporter.Record(r.Failed())
			}
		},
	})
	if reporter != nil {
		reporter.Stop()
	}
	if runErr != nil && len(summary.Results) == 0 {
		return runErr
	}

	var lookups *metrics.Stats
	if stats := a.collector.Stats(summary.Duration); stats.Total > 0 {
		lookups = &stats
	}
	report := output.NewReport(started, tmpl, summary, lookups)
	write := func(w io.Writer) error { return output.Write(w, report, cfg.Format) }
	if cfg.Output != "" {
		err = output.WriteFile(ctx, cfg.Output, write)
	} else {
		err = write(cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("batch stopped after %d records: %w", len(summary.Results), runErr)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d records failed", summary.Failed, len(summary.Results))
	}
	return nil
}

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report bracketed sequences in a template that are not known tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tmpl, err := readTemplate(cfg, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if n := warnUnknownTokens(newStderrLogger(cmd.ErrOrStderr()), tmpl); n > 0 {
				return fmt.Errorf("template has %d unknown token(s)", n)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "template OK")
			return nil
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

func newTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List the known macro tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, tok := range macro.Tokens() {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
			}
			return nil
		},
	}
}

// warnUnknownTokens logs every unknown bracketed sequence in tmpl with its
// closest known tokens and returns how many were found. Unknown sequences
// pass through substitution unchanged.
func warnUnknownTokens(logger *stderrLogger, tmpl string) int {
	unknown := macro.Unknown(tmpl)
	for _, tok := range unknown {
		if suggestions := macro.Suggest(tok); len(suggestions) > 0 {
			logger.Warn("unknown token %s (did you mean %s?)", tok, strings.Join(suggestions, ", "))
			continue
		}
		logger.Warn("unknown token %s", tok)
	}
	return len(unknown)
}
