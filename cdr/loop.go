package cdr

import (
	"math"

	"github.com/serdeslab/linksim/link"
)

// State is the recovery loop state.
type State int

const (
	// StateAcquire is the initial phase-lock convergence.
	StateAcquire State = iota
	// StateTrack is steady-state jitter tracking.
	StateTrack
)

func (s State) String() string {
	if s == StateTrack {
		return "TRACK"
	}
	return "ACQUIRE"
}

const (
	// lockWindowUIs is how many consecutive in-step UIs declare lock.
	lockWindowUIs = 8

	// MaxAcquireUIs bounds the ACQUIRE window. A loop that has not locked
	// within it is configured outside its stable region.
	MaxAcquireUIs = 4096

	// maxLoopBWFraction caps the loop bandwidth relative to the symbol
	// rate. Beyond it the discrete loop no longer converges.
	maxLoopBWFraction = 1.0 / 100

	// ditherPenaltyUIPerMHz models self-inflicted dither noise that grows
	// with loop bandwidth.
	ditherPenaltyUIPerMHz = 0.0003
)

// JitterProfile is a single-tone sinusoidal jitter stimulus.
type JitterProfile struct {
	FreqMHz     float64
	AmplitudeUI float64
}

// TrackResult is the loop output after processing a timing-error record.
type TrackResult struct {
	// PISetting is the final phase-interpolator code.
	PISetting int
	PhaseUI   float64
	State     State

	// AcquireUIs is how many unit intervals lock took.
	AcquireUIs int

	ResidualSJUI       float64
	TotalJitterUI      float64
	HorizontalMarginUI float64
}

// Loop is the discrete-time recovery loop: a bang-bang phase detector, a
// fixed-depth circular vote buffer representing logic latency, and a phase
// interpolator with finite resolution. Standard and speculative latency
// architectures run this same loop; only the latency parameter differs.
type Loop struct {
	cfg     link.ClockingConfig
	baudGBd float64
	piStep  float64

	votes []int
	head  int

	phaseUI    float64
	state      State
	lockStreak int
	acquireUIs int
}

// NewLoop validates the clocking configuration and builds the loop.
func NewLoop(cfg link.ClockingConfig, baudGBd float64) (*Loop, error) {
	if baudGBd <= 0 {
		return nil, &link.ConfigError{
			Param: "baud_gbd", Value: baudGBd, Bound: 0,
			Why: "symbol rate must be positive",
		}
	}

	maxBWMHz := baudGBd * 1000 * maxLoopBWFraction
	if cfg.LoopBandwidthMHz <= 0 || cfg.LoopBandwidthMHz > maxBWMHz {
		return nil, &link.ConfigError{
			Param: "cdr_loop_bw_mhz", Value: cfg.LoopBandwidthMHz,
			Bound: maxBWMHz,
			Why:   "loop bandwidth outside the stable range for this symbol rate",
		}
	}

	if cfg.PIResolution < 2 {
		return nil, &link.ConfigError{
			Param: "pi_resolution", Value: float64(cfg.PIResolution),
			Bound: 2, Why: "phase interpolator needs at least two codes",
		}
	}

	latency := cfg.LatencyCycles()
	if latency < 1 {
		return nil, &link.ConfigError{
			Param: "latency_cycles", Value: float64(latency),
			Bound: 1, Why: "loop latency below one cycle",
		}
	}

	return &Loop{
		cfg:     cfg,
		baudGBd: baudGBd,
		piStep:  1.0 / float64(cfg.PIResolution),
		votes:   make([]int, latency),
	}, nil
}

// Step advances the loop by one unit interval. The phase detector's vote
// enters the pipeline now but reaches the phase interpolator only after the
// configured latency; the stale vote popped from the buffer is the one
// applied.
func (l *Loop) Step(phaseErrUI float64) float64 {
	vote := 0
	if phaseErrUI > 0 {
		vote = 1
	} else if phaseErrUI < 0 {
		vote = -1
	}

	applied := l.votes[l.head]
	l.votes[l.head] = vote
	l.head = (l.head + 1) % len(l.votes)

	l.phaseUI += float64(applied) * l.piStep

	return l.phaseUI
}

// Run drives the loop through a timing-error record and reports the tracked
// state. It fails with a ConfigError when the loop cannot lock inside the
// ACQUIRE window.
func (l *Loop) Run(timingErrUI []float64, profile JitterProfile, rjUI float64) (TrackResult, error) {
	if len(timingErrUI) == 0 {
		return TrackResult{}, &link.DataError{
			Param:  "timing_error",
			Detail: "no timing-error samples supplied",
		}
	}

	// Locked means the phase error stays inside the bang-bang hunting
	// band, whose amplitude grows with the vote-pipeline latency.
	lockBand := float64(l.cfg.LatencyCycles()+2) * l.piStep

	for i, e := range timingErrUI {
		phaseErr := e - l.phaseUI
		l.Step(phaseErr)

		if math.Abs(phaseErr) <= lockBand {
			l.lockStreak++
		} else {
			l.lockStreak = 0
		}

		if l.state == StateAcquire && l.lockStreak >= lockWindowUIs {
			l.state = StateTrack
			l.acquireUIs = i + 1
		}

		if l.state == StateAcquire && i+1 >= MaxAcquireUIs {
			return TrackResult{}, &link.ConfigError{
				Param: "cdr_loop_bw_mhz", Value: l.cfg.LoopBandwidthMHz,
				Bound: float64(MaxAcquireUIs),
				Why:   "loop failed to acquire lock within the bounded window",
			}
		}
	}

	if l.state == StateAcquire {
		return TrackResult{}, &link.ConfigError{
			Param: "cdr_loop_bw_mhz", Value: l.cfg.LoopBandwidthMHz,
			Bound: float64(len(timingErrUI)),
			Why:   "timing-error record ended before lock",
		}
	}

	residualSJ := profile.AmplitudeUI * (1 - JitterTransferGain(profile.FreqMHz, l.cfg.LoopBandwidthMHz))
	total := rjUI + residualSJ + ditherPenaltyUIPerMHz*l.cfg.LoopBandwidthMHz

	return TrackResult{
		PISetting:          int(math.Round(l.phaseUI / l.piStep)),
		PhaseUI:            l.phaseUI,
		State:              l.state,
		AcquireUIs:         l.acquireUIs,
		ResidualSJUI:       residualSJ,
		TotalJitterUI:      total,
		HorizontalMarginUI: l.HorizontalMargin(total),
	}, nil
}

// HorizontalMargin converts the loop configuration and a total jitter figure
// into horizontal eye margin. The hunting term grows with loop latency: a
// stale vote keeps pushing the interpolator one extra step per cycle of
// delay. Both latency architectures are evaluated by this same expression.
func (l *Loop) HorizontalMargin(totalJitterUI float64) float64 {
	hunting := float64(l.cfg.LatencyCycles()+1) * l.piStep
	return 0.5 - hunting - totalJitterUI
}

// JitterTransferGain is the first-order tracking gain of the loop: input
// jitter below the loop bandwidth is tracked out, jitter above it passes
// through, rolling off at 20 dB/decade.
func JitterTransferGain(freqMHz, bwMHz float64) float64 {
	r := freqMHz / bwMHz
	return 1.0 / (1.0 + r*r)
}

// TimingErrorSamples synthesizes the deterministic timing-error record seen
// by the phase detector: a static phase offset plus single-tone sinusoidal
// jitter.
func TimingErrorSamples(offsetUI float64, profile JitterProfile, baudGBd float64, n int) []float64 {
	uiSec := link.BaudUIps(baudGBd) * 1e-12
	w := 2 * math.Pi * profile.FreqMHz * 1e6

	out := make([]float64, n)
	for i := range out {
		t := float64(i) * uiSec
		out[i] = offsetUI + profile.AmplitudeUI*math.Sin(w*t)
	}

	return out
}

// JitterToVoltageMV converts timing uncertainty into equivalent vertical eye
// closure using the slope method: eye closure = jitter x dV/dt at the
// steepest part of the single-bit response.
func JitterToVoltageMV(sbr *link.SBR, vppMV, totalJitterUI float64) float64 {
	slopePerSec := sbr.CursorSlope() * vppMV
	jitterSec := totalJitterUI * sbr.UISeconds

	tax := slopePerSec * jitterSec
	if tax < 0 {
		return 0
	}

	return tax
}
