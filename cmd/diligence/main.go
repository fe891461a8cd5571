// diligence generates company due-diligence reports from market, news,
// regulatory, profile, funding and analyst data.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/seenimoa/diligence/api"
	"github.com/seenimoa/diligence/internal/aggregate"
	"github.com/seenimoa/diligence/internal/app"
	"github.com/seenimoa/diligence/internal/config"
	"github.com/seenimoa/diligence/internal/diligence"
	"github.com/seenimoa/diligence/internal/logging"
	"github.com/seenimoa/diligence/internal/report"
	"github.com/seenimoa/diligence/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root command.
var (
	cfg    *config.Config
	logger *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "diligence",
	Short: "Multi-source company due-diligence reports",
	Long: `diligence gathers data about a company from several providers in
parallel (market data, news, regulatory filings, company profile,
funding history, analyst coverage) and writes a structured
due-diligence report with a generative text backend.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger = logging.New(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (trace, debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("diligence %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hub := api.NewWSHub()
		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := api.NewServer(a.Service, hub, cfg.API,
			api.WithLogger(logger),
			api.WithVersion(version),
			api.WithKeyStatus(func() []config.KeyStatus { return config.CheckAPIKeys(cfg) }),
		)
		return srv.ListenAndServe(ctx, cfg.API.Addr())
	},
}

// --- Report Command ---

var reportCmd = &cobra.Command{
	Use:   "report <company>",
	Short: "Generate a due-diligence report for a company",
	Long: `Generate a due-diligence report and print it to stdout.

Examples:
  diligence report "Apple"
  diligence report "Apple Inc" --format markdown
  diligence report Stripe --reuse --progress`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		reuse, _ := cmd.Flags().GetBool("reuse")
		progress, _ := cmd.Flags().GetBool("progress")
		if format != "json" && format != "markdown" {
			return fmt.Errorf("unknown format %q (want json or markdown)", format)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var observers []aggregate.Observer
		if progress {
			observers = append(observers, printProgress)
		}

		req := diligence.Request{CompanyName: strings.Join(args, " "), Reuse: reuse}
		r, err := a.Service.Generate(ctx, req, observers...)
		if err != nil {
			return err
		}
		return writeReport(cmd, r, format)
	},
}

func init() {
	reportCmd.Flags().StringP("format", "f", "json", "output format: json or markdown")
	reportCmd.Flags().Bool("reuse", false, "return today's stored report when one exists")
	reportCmd.Flags().Bool("progress", false, "print provider progress to stderr")
}

func writeReport(cmd *cobra.Command, r *report.Report, format string) error {
	out := cmd.OutOrStdout()
	if format == "markdown" {
		_, err := fmt.Fprint(out, report.RenderMarkdown(r))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func printProgress(e aggregate.Event) {
	switch e.Type {
	case aggregate.EventProviderStarted:
		fmt.Fprintf(os.Stderr, "  … %-8s started\n", e.Provider)
	case aggregate.EventProviderFinished:
		line := string(e.Status)
		if e.Kind != "" {
			line += " (" + string(e.Kind) + ")"
		}
		if e.Cached {
			line += " [cached]"
		}
		fmt.Fprintf(os.Stderr, "  ✓ %-8s %s in %s\n", e.Provider, line, report.FormatDuration(e.Latency))
	case aggregate.EventAggregationFinished:
		fmt.Fprintln(os.Stderr, "  aggregation finished, writing report")
	}
}

// --- Providers Command ---

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List data providers and whether they are enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg, logging.Discard())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, info := range a.Service.Providers() {
			fmt.Fprintf(out, "  ✅ %-8s %s (%d req / %ds)\n", info.Name, info.Description, info.MaxRequests, info.WindowSecs)
		}
		for _, s := range a.Skipped {
			fmt.Fprintf(out, "  ❌ %-8s skipped: %s\n", s.Name, s.Reason)
		}
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg, logging.Discard())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintln(out, "  diligence - System Status")
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
		fmt.Fprintf(out, "  Time (UTC):    %s\n", utils.FormatDateTimeUTC(time.Now()))
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Configuration:")
		backends := "none"
		if a.Router != nil {
			backends = strings.Join(a.Router.Chain(), " → ")
		}
		fmt.Fprintf(out, "    LLM backends:  %s\n", backends)
		fmt.Fprintf(out, "    Providers:     %d enabled, %d skipped\n", len(a.Service.Providers()), len(a.Skipped))
		fmt.Fprintf(out, "    Cache:         %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL())
		fmt.Fprintf(out, "    Storage:       %s\n", cfg.Storage.Driver)
		fmt.Fprintf(out, "    API Server:    %s\n", cfg.API.Addr())
		if err := a.Service.Check(); err != nil {
			msg := err.Error()
			if errors.Is(err, diligence.ErrMisconfigured) {
				msg = "⚠️  " + msg
			}
			fmt.Fprintf(out, "    Readiness:     %s\n", msg)
		} else {
			fmt.Fprintln(out, "    Readiness:     ready")
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Fprintf(out, "    %-30s %s\n", k.Name+":", status)
		}

		fmt.Fprintln(out, "═══════════════════════════════════════")
		return nil
	},
}
