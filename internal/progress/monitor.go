package progress

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"bundleeval/internal/logging"
)

const defaultInterval = time.Second

// Counter is the dispenser view the monitor samples.
type Counter interface {
	Claimed(ctx context.Context) (int64, error)
	Total() int64
}

// Options configures a Monitor.
type Options struct {
	Interval time.Duration
	// Out receives the progress bar when Interactive is set.
	Out         io.Writer
	Interactive bool
	Logger      *slog.Logger
	Description string
}

// Snapshot is the last observed progress.
type Snapshot struct {
	Claimed int64
	Total   int64
	Elapsed time.Duration
}

// Done reports whether every ticket has been claimed.
func (s Snapshot) Done() bool {
	return s.Claimed >= s.Total
}

// Monitor polls a Counter and reports claimed/total.
type Monitor struct {
	counter Counter
	opts    Options
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	printer *message.Printer
}

// New returns a monitor for counter.
func New(counter Counter, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Description == "" {
		opts.Description = "identifying"
	}
	return &Monitor{
		counter: counter,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "progress"),
		sampler: logging.NewProgressSampler(10),
		printer: message.NewPrinter(language.English),
	}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Run polls until every ticket is claimed, workersDone is closed, or ctx
// ends, and returns the final snapshot.
func (m *Monitor) Run(ctx context.Context, workersDone <-chan struct{}) Snapshot {
	started := time.Now()
	total := m.counter.Total()
	snap := Snapshot{Total: total}

	var bar *progressbar.ProgressBar
	if m.opts.Interactive && total > 0 {
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(m.opts.Out),
			progressbar.OptionSetDescription(m.opts.Description),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("jobs"),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(m.opts.Interval),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(m.opts.Out, "\n") }),
		)
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		m.sample(ctx, &snap, started, bar)
		if snap.Done() {
			break
		}
		select {
		case <-ctx.Done():
			return snap
		case <-workersDone:
			m.sample(ctx, &snap, started, bar)
			return snap
		case <-ticker.C:
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return snap
}

func (m *Monitor) sample(ctx context.Context, snap *Snapshot, started time.Time, bar *progressbar.ProgressBar) {
	claimed, err := m.counter.Claimed(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Debug("progress sample failed", logging.Error(err))
		}
		return
	}
	if claimed > snap.Total {
		claimed = snap.Total
	}
	snap.Claimed = claimed
	snap.Elapsed = time.Since(started)

	if bar != nil {
		_ = bar.Set64(claimed)
		return
	}
	if !m.sampler.Observe("claimed", claimed, snap.Total) {
		return
	}
	attrs := []logging.Attr{
		logging.String("claimed", m.printer.Sprintf("%d", claimed)),
		logging.String("total", m.printer.Sprintf("%d", snap.Total)),
		logging.Float64("percent", percent(claimed, snap.Total)),
		logging.String(logging.FieldEventType, "run_progress"),
	}
	if eta, ok := estimate(claimed, snap.Total, snap.Elapsed); ok {
		attrs = append(attrs, logging.Duration("eta", eta))
	}
	m.logger.Info("progress", logging.Args(attrs...)...)
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(int(float64(done)*1000/float64(total))) / 10
}

// estimate extrapolates the remaining time from the average claim rate.
func estimate(done, total int64, elapsed time.Duration) (time.Duration, bool) {
	if done <= 0 || done >= total || elapsed <= 0 {
		return 0, false
	}
	perJob := elapsed / time.Duration(done)
	return (perJob * time.Duration(total-done)).Round(time.Second), true
}

// FormatCount renders n with thousands separators.
func FormatCount(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
