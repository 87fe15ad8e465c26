package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bundleeval/internal/config"
	"bundleeval/internal/coordinator"
	"bundleeval/internal/logging"
	"bundleeval/internal/progress"
)

type runFlags struct {
	archive           string
	output            string
	workers           int
	strategy          string
	endpoint          string
	requiresSourceMap bool
	requestCache      bool
	excludeCDN        bool
	headers           []string
	basePort          int
	keepRunFiles      bool
	noProgress        bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [dataset files...]",
		Short: "Submit every script in the datasets to the identification service",
		Long: `Extract jobs from the dataset files, skip those already recorded in the
output file, and evaluate the rest with one identification service per worker.
Records are appended to the output file as they complete, so an interrupted
run resumes where it stopped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logID := time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
			logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("bundleeval-%s.log", logID))
			logger, err := logging.NewFromConfig(cfg, logPath)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
				logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "bundleeval-*.log", Exclude: []string{logPath}},
			)

			launcher, err := coordinator.NewExecLauncher()
			if err != nil {
				return err
			}
			launcher.Args = workerGlobalArgs(cmd)

			coord, err := coordinator.New(cfg, coordinator.Options{
				Datasets:     args,
				Archive:      flags.archive,
				Output:       flags.output,
				Launcher:     launcher,
				Interactive:  !flags.noProgress && progress.IsTerminal(os.Stderr),
				ProgressOut:  os.Stderr,
				KeepRunFiles: flags.keepRunFiles,
			}, logger)
			if err != nil {
				return err
			}

			summary, runErr := coord.Run(signalCtx)
			if summary.RunID != "" {
				printRunSummary(cmd, summary, logPath)
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&flags.archive, "archive", "a", "", "Object store archive (tar of content-addressed blobs)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file for BSON result records")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Number of workers (default harness.workers)")
	cmd.Flags().StringVarP(&flags.strategy, "strategy", "s", "", "Identification strategy (see 'bundleeval strategies')")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "Override the strategy's service endpoint")
	cmd.Flags().BoolVar(&flags.requiresSourceMap, "requires-source-map", false, "Only submit scripts that carry a source map")
	cmd.Flags().BoolVar(&flags.requestCache, "request-cache", false, "Reuse stored service responses for identical requests")
	cmd.Flags().BoolVar(&flags.excludeCDN, "exclude-cdn", false, "Skip scripts served from known CDN hosts")
	cmd.Flags().StringArrayVarP(&flags.headers, "header", "H", nil, "Extra request header as Name=Value (repeatable)")
	cmd.Flags().IntVar(&flags.basePort, "base-port", 0, "First service port; worker i listens on base+i")
	cmd.Flags().BoolVar(&flags.keepRunFiles, "keep-run-files", false, "Keep the manifest and ticket counter after a complete run")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Log progress instead of drawing a progress bar")
	_ = cmd.MarkFlagRequired("archive")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// apply copies explicitly set flags over cfg and re-validates it.
func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("workers") {
		cfg.Harness.Workers = f.workers
	}
	if changed("strategy") {
		cfg.Harness.Strategy = f.strategy
	}
	if changed("endpoint") {
		cfg.Harness.Endpoint = f.endpoint
	}
	if changed("requires-source-map") {
		cfg.Harness.RequiresSourceMap = f.requiresSourceMap
	}
	if changed("request-cache") {
		cfg.Harness.RequestCache = f.requestCache
	}
	if changed("exclude-cdn") {
		cfg.Harness.ExcludeCDN = f.excludeCDN
	}
	for _, header := range f.headers {
		name, value, ok := strings.Cut(header, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("invalid header %q: expected Name=Value", header)
		}
		if cfg.Service.Headers == nil {
			cfg.Service.Headers = make(map[string]string)
		}
		cfg.Service.Headers[name] = value
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	// Applied after Normalize so the flag wins over the PORT fallback.
	if changed("base-port") {
		cfg.Service.BasePort = f.basePort
	}
	return cfg.Validate()
}

// workerGlobalArgs forwards logging overrides to re-executed workers.
func workerGlobalArgs(cmd *cobra.Command) []string {
	var args []string
	for _, name := range []string{"log-level", "log-format"} {
		flag := cmd.Flags().Lookup(name)
		if flag != nil && flag.Changed {
			args = append(args, "--"+name, flag.Value.String())
		}
	}
	return args
}

func printRunSummary(cmd *cobra.Command, s coordinator.Summary, logPath string) {
	out := cmd.OutOrStdout()
	sp := newStatusPrinter(out)

	sp.section("Run " + s.RunID)
	sp.line("Strategy", statusInfo, s.Strategy+" "+s.Endpoint)

	switch failed := s.Failed(); {
	case len(failed) > 0:
		sp.line("Workers", statusWarn,
			fmt.Sprintf("%d of %d ended with errors", len(failed), len(s.Workers)))
		for _, w := range failed {
			sp.line("Worker "+strconv.Itoa(w.Index), statusError, w.Err.Error())
		}
	case len(s.Workers) > 0:
		sp.line("Workers", statusOK, strconv.Itoa(len(s.Workers))+" finished")
	}
	if s.Complete() {
		sp.line("Tickets", statusOK, "all jobs claimed")
	} else {
		sp.line("Tickets", statusWarn,
			fmt.Sprintf("%d of %d claimed; rerun to resume", s.Claimed, s.Dispatched))
	}
	if s.RepairedBytes > 0 {
		sp.line("Output repair", statusWarn,
			"dropped "+humanize.IBytes(uint64(s.RepairedBytes))+" truncated tail")
	}

	rows := [][]string{
		{"Documents", progress.FormatCount(int64(s.Extract.Documents))},
		{"Parse errors", progress.FormatCount(int64(s.Extract.ParseErrors))},
		{"Jobs extracted", progress.FormatCount(int64(s.Extracted))},
		{"Already recorded", progress.FormatCount(int64(s.AlreadyDone))},
		{"Dispatched", progress.FormatCount(int64(s.Dispatched))},
		{"Claimed", progress.FormatCount(s.Claimed)},
		{"Records in output", progress.FormatCount(int64(s.Output.Total))},
		{"Success", progress.FormatCount(int64(s.Output.Success))},
		{"Error", progress.FormatCount(int64(s.Output.Error))},
		{"Ignored", progress.FormatCount(int64(s.Output.Ignored))},
		{"Served from cache", progress.FormatCount(int64(s.Output.Cached))},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
	}
	fmt.Fprintln(out, keyValueTable(rows))
	if logPath != "" {
		fmt.Fprintf(out, "Log: %s\n", logPath)
	}
}
