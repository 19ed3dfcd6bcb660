// Package group fits many power spectra that share a frequency axis.
//
// Fitting itself is left to a SpectrumFitter; this package only schedules
// the calls and keeps the results in input order.
package group

import (
	"context"
	"time"

	"github.com/RyanBlaney/sonido-specparam/logging"
	"github.com/RyanBlaney/sonido-specparam/specparam"
	"golang.org/x/sync/errgroup"
)

// SpectrumFitter fits one linear power spectrum. *specparam.Fitter
// implements it.
type SpectrumFitter interface {
	FitSpectrum(freqs, power []float64, freqRange *[2]float64) (*specparam.FitResult, error)
}

// Result is the outcome for one spectrum of a group. Err holds input errors
// and, in debug mode, fit errors; a failed fit otherwise shows up as a
// result without a model.
type Result struct {
	Index int                  `json:"index"`
	Fit   *specparam.FitResult `json:"fit,omitempty"`
	Err   error                `json:"-"`
}

// Dispatcher fans a group of spectra out to a fitter. Results are returned
// in the order of powerSpectra.
type Dispatcher interface {
	Dispatch(ctx context.Context, fitter SpectrumFitter, freqs []float64, powerSpectra [][]float64, freqRange *[2]float64) ([]Result, error)
}

// ParallelDispatcher fits spectra concurrently with a bounded number of
// goroutines
type ParallelDispatcher struct {
	concurrency int
	logger      logging.Logger
}

// Option configures a ParallelDispatcher
type Option func(*ParallelDispatcher)

// WithConcurrency sets the maximum number of concurrent fits.
// Values below one are ignored.
func WithConcurrency(n int) Option {
	return func(d *ParallelDispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets the logger for group-level progress
func WithLogger(logger logging.Logger) Option {
	return func(d *ParallelDispatcher) {
		d.logger = logger
	}
}

// NewParallelDispatcher creates a dispatcher running 4 fits at a time by default
func NewParallelDispatcher(opts ...Option) *ParallelDispatcher {
	d := &ParallelDispatcher{concurrency: 4}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.GetGlobalLogger()
	}
	return d
}

// Concurrency returns the configured limit
func (d *ParallelDispatcher) Concurrency() int {
	return d.concurrency
}

// Dispatch fits every spectrum. A failure on one spectrum is recorded in its
// Result and does not stop the others; only cancellation of ctx ends the
// group early, in which case the context error is returned along with the
// results collected so far.
func (d *ParallelDispatcher) Dispatch(ctx context.Context, fitter SpectrumFitter, freqs []float64, powerSpectra [][]float64, freqRange *[2]float64) ([]Result, error) {
	d.logger.Info("starting group fit", logging.Fields{
		"n_spectra":   len(powerSpectra),
		"concurrency": d.concurrency,
	})
	start := time.Now()

	results := make([]Result, len(powerSpectra))
	for i := range results {
		results[i].Index = i
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, power := range powerSpectra {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			// each goroutine writes only its own slot
			fit, err := fitter.FitSpectrum(freqs, power, freqRange)
			results[i].Fit = fit
			results[i].Err = err

			if err != nil {
				d.logger.Warn("spectrum fit failed", logging.Fields{
					"index": i,
					"error": err.Error(),
				})
			}
			return nil
		})
	}

	err := g.Wait()

	d.logger.Info("group fit complete", logging.Fields{
		"n_spectra": len(powerSpectra),
		"elapsed":   time.Since(start).String(),
	})

	return results, err
}

// Fits returns the fit results of a group, with nil for spectra that failed
// with an error
func Fits(results []Result) []*specparam.FitResult {
	out := make([]*specparam.FitResult, len(results))
	for i, r := range results {
		out[i] = r.Fit
	}
	return out
}
