// Package montecarlo samples process variation through the full sign-off
// pipeline and aggregates the margin distribution into a yield verdict.
package montecarlo

import (
	"runtime"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/monitoring"
	"github.com/serdeslab/linksim/signoff"
)

// Runner executes one perturbed sign-off pass. *signoff.Runner satisfies it;
// tests substitute a mock.
type Runner interface {
	Run(p link.Perturbation) (*signoff.Result, error)
}

// Sigmas are the per-parameter Gaussian widths of the process variation
// model.
type Sigmas struct {
	LatencyCycles float64
	DFETapErrMV   float64
	BandwidthMHz  float64
	ISIExtraMV    float64
}

// DefaultSigmas returns the calibrated 3-sigma variation knobs: logic speed,
// DFE summer offset, PLL bandwidth, and channel/package ISI.
func DefaultSigmas() Sigmas {
	return Sigmas{
		LatencyCycles: 1,
		DFETapErrMV:   2.0,
		BandwidthMHz:  1.0,
		ISIExtraMV:    5.0,
	}
}

// Params configures one yield analysis.
type Params struct {
	Iterations int
	Seed       uint64

	// GuardbandSigma is how many sigmas of margin the design must keep
	// above zero to pass.
	GuardbandSigma float64

	// PassThresholdMV is the per-sample margin floor used for the yield
	// percentage.
	PassThresholdMV float64

	// Workers bounds the concurrent iterations. Zero means one worker per
	// logical CPU.
	Workers int

	BaseLatencyCycles int
	BaseBandwidthMHz  float64
}

// DefaultParams derives the default analysis parameters from a clocking
// configuration.
func DefaultParams(clk link.ClockingConfig) Params {
	return Params{
		Iterations:        500,
		Seed:              1,
		GuardbandSigma:    3,
		PassThresholdMV:   15,
		BaseLatencyCycles: clk.LatencyCycles(),
		BaseBandwidthMHz:  clk.LoopBandwidthMHz,
	}
}

// Sample is one perturbed run's draw and final margin. Waveforms are not
// retained.
type Sample struct {
	Index             int
	Perturbation      link.Perturbation
	FinalVerticalMV   float64
	FinalHorizontalUI float64
}

// Report is the aggregate yield analysis outcome. Its statistics are always
// recomputed from the full sample collection.
type Report struct {
	Samples []Sample

	MeanMV      float64
	SigmaMV     float64
	GuardbandMV float64

	YieldPercent float64
	Pass         bool
}

// Verdict summarizes the report for human consumption.
func (r *Report) Verdict() string {
	switch {
	case r.YieldPercent > 99.7:
		return "silicon ready: robust against process variation"
	case r.YieldPercent > 90:
		return "high risk: needs further optimization for yield"
	default:
		return "guaranteed fail: re-evaluate the architecture"
	}
}

// Engine drives the iterations. Iterations share only the read-only base
// configuration, so they run concurrently; aggregation happens after all of
// them complete and is invariant to completion order.
type Engine struct {
	params  Params
	sigmas  Sigmas
	monitor *monitoring.Monitor
}

// NewEngine validates the analysis parameters and builds an engine.
func NewEngine(params Params, sigmas Sigmas) (*Engine, error) {
	if params.Iterations < 1 {
		return nil, &link.ConfigError{
			Param: "iterations", Value: float64(params.Iterations),
			Bound: 1, Why: "yield analysis needs at least one iteration",
		}
	}

	if params.GuardbandSigma <= 0 {
		return nil, &link.ConfigError{
			Param: "guardband_sigma", Value: params.GuardbandSigma,
			Bound: 0, Why: "guardband must be positive",
		}
	}

	return &Engine{params: params, sigmas: sigmas}, nil
}

// WithMonitor reports progress to a monitoring server.
func (e *Engine) WithMonitor(m *monitoring.Monitor) *Engine {
	e.monitor = m
	return e
}

// Draw produces iteration i's perturbation. Each iteration derives its own
// generator from the base seed, so draws are independent of execution order
// and reproducible for a fixed seed.
func (e *Engine) Draw(i int) link.Perturbation {
	src := rand.NewSource(e.params.Seed + uint64(i))

	normal := func(mu, sigma float64) float64 {
		return distuv.Normal{Mu: mu, Sigma: sigma, Src: src}.Rand()
	}

	latency := int(normal(float64(e.params.BaseLatencyCycles),
		e.sigmas.LatencyCycles) + 0.5)
	if latency < 1 {
		latency = 1
	}

	dfeErr := normal(0, e.sigmas.DFETapErrMV)

	bw := normal(e.params.BaseBandwidthMHz, e.sigmas.BandwidthMHz)
	if bw < 1 {
		bw = 1
	}

	isiExtra := normal(0, e.sigmas.ISIExtraMV)
	if isiExtra < 0 {
		isiExtra = 0
	}

	return link.Perturbation{
		LatencyCycles: latency,
		DFETapErrMV:   dfeErr,
		BandwidthMHz:  bw,
		ISIExtraMV:    isiExtra,
	}
}

// Run executes the yield analysis. Any iteration failure aborts the whole
// analysis; a partial report is never returned.
func (e *Engine) Run(r Runner) (*Report, error) {
	n := e.params.Iterations

	workers := e.params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	var bar *monitoring.ProgressBar
	if e.monitor != nil {
		bar = e.monitor.CreateProgressBar("Monte Carlo yield", uint64(n))
		defer e.monitor.CompleteProgressBar(bar)
	}

	samples := make([]Sample, n)
	indexes := make(chan int, n)
	for i := 0; i < n; i++ {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := range indexes {
				p := e.Draw(i)

				res, err := r.Run(p)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					return
				}

				samples[i] = Sample{
					Index:             i,
					Perturbation:      p,
					FinalVerticalMV:   res.Waterfall.FinalVerticalMV,
					FinalHorizontalUI: res.Waterfall.FinalHorizontalUI,
				}

				if bar != nil {
					bar.IncrementFinished(1)
				}
			}
		}()
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return e.aggregate(samples), nil
}

func (e *Engine) aggregate(samples []Sample) *Report {
	margins := make([]float64, len(samples))
	passing := 0
	for i, s := range samples {
		margins[i] = s.FinalVerticalMV
		if s.FinalVerticalMV > e.params.PassThresholdMV {
			passing++
		}
	}

	mean := stat.Mean(margins, nil)
	sigma := stat.StdDev(margins, nil)
	guardband := mean - e.params.GuardbandSigma*sigma

	return &Report{
		Samples:      samples,
		MeanMV:       mean,
		SigmaMV:      sigma,
		GuardbandMV:  guardband,
		YieldPercent: float64(passing) / float64(len(samples)) * 100,
		Pass:         guardband > 0,
	}
}
