package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bundleeval/internal/progress"
	"bundleeval/internal/results"
	"bundleeval/internal/rundir"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [results file]",
		Short: "Summarize a results file and the run directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			sp := newStatusPrinter(out)

			if len(args) == 1 {
				counts, scan, err := results.Count(args[0])
				if err != nil {
					return err
				}
				sp.section("Results " + args[0])
				pct := func(n int) string {
					if counts.Total == 0 {
						return "-"
					}
					return fmt.Sprintf("%.1f%%", float64(n)*100/float64(counts.Total))
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Outcome", "Records", "Share"},
					[][]string{
						{"success", progress.FormatCount(int64(counts.Success)), pct(counts.Success)},
						{"error", progress.FormatCount(int64(counts.Error)), pct(counts.Error)},
						{"ignored", progress.FormatCount(int64(counts.Ignored)), pct(counts.Ignored)},
						{"total", progress.FormatCount(int64(counts.Total)), ""},
					},
					[]columnAlignment{alignLeft, alignRight, alignRight},
				))
				if counts.Cached > 0 {
					sp.line("Request cache", statusInfo,
						progress.FormatCount(int64(counts.Cached))+" records served from cache")
				}
				if counts.Duplicates > 0 {
					sp.line("Duplicates", statusWarn,
						progress.FormatCount(int64(counts.Duplicates))+" records repeat an earlier id")
				}
				if scan.Truncated > 0 {
					sp.line("Tail", statusWarn,
						humanize.IBytes(uint64(scan.Truncated))+" partial record; the next run repairs it")
				}
			}

			layout := rundir.New(cfg.Paths.RunDir)
			files, err := layout.List()
			if err != nil {
				return err
			}
			sp.section("Run directory " + layout.Dir)
			if len(files) == 0 {
				sp.line("Files", statusInfo, "none")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{f.Name, humanize.IBytes(uint64(f.Size)), humanize.RelTime(f.ModTime, time.Now(), "ago", "from now")})
			}
			fmt.Fprintln(out, renderTable([]string{"File", "Size", "Modified"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
			if hasRunFiles(files) {
				sp.line("Run state", statusWarn, "an unfinished or kept run is present")
			}
			return nil
		},
	}
}

func hasRunFiles(files []rundir.FileInfo) bool {
	for _, f := range files {
		if f.Name == rundir.ManifestName || f.Name == rundir.CounterName {
			return true
		}
	}
	return false
}
