package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
)

func analyzeCmd() *cobra.Command {
	var (
		format  string
		output  string
		retries int
		tui     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <linkedin-url>",
		Short: "Analyze a LinkedIn profile and find matching YC jobs",
		Example: `  jobscout analyze https://www.linkedin.com/in/someone/
  jobscout analyze https://www.linkedin.com/in/someone/ --format json -o report.json
  jobscout analyze https://www.linkedin.com/in/someone/ --tui`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := reportEncoder(format); err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), args[0], analyzeOptions{
				format:  format,
				output:  output,
				retries: retries,
				tui:     tui,
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format: markdown, json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().IntVar(&retries, "retries", -1, "retries for transient stage failures (default from config, 0 disables)")
	cmd.Flags().BoolVar(&tui, "tui", false, "show live stage progress")
	return cmd
}

type analyzeOptions struct {
	format  string
	output  string
	retries int
	tui     bool
}

func runAnalyze(parent context.Context, profileURL string, opts analyzeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	// Reject bad input before the subprocess or any network call.
	profileURL, err := pipeline.NormalizeProfileURL(profileURL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.tui && !verbose {
		// Log lines would tear the progress view.
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}
	if opts.retries >= 0 {
		cfg.Pipeline.MaxRetries = opts.retries
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	// Bring the web-access server up before spending any model calls.
	if _, err := a.supervisor.Initialize(ctx); err != nil {
		return err
	}

	var report *pipeline.Report
	if opts.tui {
		report, err = runWithProgress(ctx, a.orch, profileURL)
	} else {
		report, err = a.orch.Run(ctx, profileURL)
	}
	if err != nil {
		return err
	}

	data, err := renderReport(report, opts.format)
	if err != nil {
		return err
	}
	if opts.output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", opts.output)
	return nil
}

type encodeFunc func(*pipeline.Report) ([]byte, error)

func reportEncoder(format string) (encodeFunc, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return func(r *pipeline.Report) ([]byte, error) {
			out := r.Markdown
			if !strings.HasSuffix(out, "\n") {
				out += "\n"
			}
			return []byte(out), nil
		}, nil
	case "json":
		return func(r *pipeline.Report) ([]byte, error) {
			data, err := json.MarshalIndent(r, "", "  ")
			return append(data, '\n'), err
		}, nil
	case "yaml", "yml":
		return func(r *pipeline.Report) ([]byte, error) { return yaml.Marshal(r) }, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want markdown, json or yaml)", format)
	}
}

func renderReport(r *pipeline.Report, format string) ([]byte, error) {
	enc, err := reportEncoder(format)
	if err != nil {
		return nil, err
	}
	return enc(r)
}
