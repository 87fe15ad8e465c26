package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bundleeval/internal/jobs"
	"bundleeval/internal/logging"
	"bundleeval/internal/progress"
	"bundleeval/internal/recovery"
	"bundleeval/internal/strategy"
)

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var resultsPath string
	var outputPath string
	var restoreOrder bool
	var parallelism int
	var strategyName string
	var requiresSourceMap bool
	var excludeCDN bool

	cmd := &cobra.Command{
		Use:   "recover [dataset files...]",
		Short: "Join a results file back to its datasets as JSON",
		Long: `Rebuild the job lists of the dataset files and write each job's record,
tagged with the domain it was crawled from. By default jobs are deduplicated
by domain and id; --restore-order writes one array per dataset file instead.
Pass the same filter flags as the run so the job lists match.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			changed := cmd.Flags().Changed
			if changed("strategy") {
				cfg.Harness.Strategy = strategyName
			}
			if changed("requires-source-map") {
				cfg.Harness.RequiresSourceMap = requiresSourceMap
			}
			if changed("exclude-cdn") {
				cfg.Harness.ExcludeCDN = excludeCDN
			}
			resolved, err := strategy.Resolve(cfg.Harness.Strategy, "", cfg.Harness.RequiresSourceMap)
			if err != nil {
				return err
			}
			if parallelism <= 0 {
				parallelism = cfg.Harness.Workers
			}

			logger, err := logging.NewFromConfig(cfg, "")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			stats, err := recovery.Recover(cmd.Context(), recovery.Options{
				Datasets:     args,
				Results:      resultsPath,
				Output:       outputPath,
				RestoreOrder: restoreOrder,
				Filter:       jobs.FilterFromConfig(cfg, resolved.RequiresSourceMap()),
				Parallelism:  parallelism,
			}, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, keyValueTable([][]string{
				{"Dataset files", progress.FormatCount(int64(stats.Files))},
				{"Jobs", progress.FormatCount(int64(stats.Occurrences))},
				{"Records read", progress.FormatCount(int64(stats.Records))},
				{"Restored", progress.FormatCount(int64(stats.Restored))},
				{"Missing", progress.FormatCount(int64(stats.Missing))},
			}))
			fmt.Fprintf(out, "Wrote %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&resultsPath, "results", "r", "", "Results file written by a run")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "JSON file to write")
	cmd.Flags().BoolVar(&restoreOrder, "restore-order", false, "Write one array per dataset file in document order")
	cmd.Flags().IntVarP(&parallelism, "workers", "w", 0, "Dataset files parsed in parallel (default harness.workers)")
	cmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "Strategy the run used")
	cmd.Flags().BoolVar(&requiresSourceMap, "requires-source-map", false, "The run only submitted scripts with a source map")
	cmd.Flags().BoolVar(&excludeCDN, "exclude-cdn", false, "The run skipped scripts served from known CDN hosts")
	_ = cmd.MarkFlagRequired("results")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
