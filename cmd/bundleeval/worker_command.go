package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bundleeval/internal/logging"
	"bundleeval/internal/worker"
)

// newWorkerCommand is the entry point of re-executed worker processes. It
// loads its own configuration so that a bad snapshot maps to the setup exit
// code rather than a generic failure.
func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var runDir string
	var index int

	cmd := &cobra.Command{
		Use:         "worker",
		Short:       "Process tickets for a prepared run",
		Hidden:      true,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return exitCodeError{code: worker.ExitSetup, err: err}
			}
			logger, err := logging.NewFromConfig(cfg, "")
			if err != nil {
				return exitCodeError{code: worker.ExitSetup, err: fmt.Errorf("init logger: %w", err)}
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if _, err := worker.Serve(signalCtx, cfg, runDir, index, logger); err != nil {
				return exitCodeError{code: worker.ExitCode(err), err: err}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runDir, "run-dir", "", "Run directory holding the manifest and ticket counter")
	cmd.Flags().IntVar(&index, "index", 0, "Worker index")
	_ = cmd.MarkFlagRequired("run-dir")

	return cmd
}
