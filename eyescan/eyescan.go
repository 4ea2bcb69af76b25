// Package eyescan folds a long PAM4 waveform into a two-UI eye diagram and
// extracts vertical opening, horizontal opening, and level-mismatch metrics.
// The stimulus is a PRBS7-driven symbol stream, so repeated scans of the same
// response are bit-identical.
package eyescan

import (
	"math"

	"github.com/serdeslab/linksim/link"
)

// pam4Levels are the four normalized symbol amplitudes. Adjacent levels are
// one unit apart; the full swing spans three units.
var pam4Levels = [4]float64{-1.5, -0.5, 0.5, 1.5}

// pam4Thresholds are the three decision thresholds between adjacent levels.
var pam4Thresholds = [3]float64{-1.0, 0.0, 1.0}

// prbs7Seed is the initial LFSR state. Any non-zero 7-bit value works; this
// one is fixed so every scan replays the same symbol stream.
const prbs7Seed = 0x7F

// DefaultScanUIs is the default stimulus length in unit intervals.
const DefaultScanUIs = 1000

// Metrics is the eye-quality summary of one scan.
type Metrics struct {
	// VerticalMV is the smallest of the three PAM4 sub-eye openings at the
	// best sampling instant.
	VerticalMV float64

	// HorizontalUI is the narrowest zero-threshold crossing span over all
	// folded traces.
	HorizontalUI float64

	// RLM is a relative-level-mismatch figure of merit.
	RLM float64
}

// Analyzer folds waveforms at a fixed sampling density.
type Analyzer struct {
	samplesPerUI int
}

// NewAnalyzer validates the sampling density and builds an analyzer.
func NewAnalyzer(samplesPerUI int) (*Analyzer, error) {
	if samplesPerUI < 2 {
		return nil, &link.ConfigError{
			Param: "samples_per_ui", Value: float64(samplesPerUI),
			Bound: 2, Why: "below minimum sampling density",
		}
	}
	return &Analyzer{samplesPerUI: samplesPerUI}, nil
}

// prbs7Symbols generates n PAM4 symbols from a PRBS7 LFSR, two bits per
// symbol.
func prbs7Symbols(n int) []float64 {
	state := uint8(prbs7Seed)
	next := func() uint8 {
		bit := ((state >> 6) ^ (state >> 5)) & 1
		state = ((state << 1) | bit) & 0x7F
		return bit
	}

	out := make([]float64, n)
	for i := range out {
		idx := next()<<1 | next()
		out[i] = pam4Levels[idx]
	}

	return out
}

// FoldEye superimposes a PRBS7 PAM4 stream onto the single-bit response and
// folds the settled waveform into two-UI traces. It returns nil when the
// stimulus is too short to produce even one trace.
func (a *Analyzer) FoldEye(sbr *link.SBR, numUIs int) [][]float64 {
	if numUIs <= 0 {
		numUIs = DefaultScanUIs
	}
	sp := a.samplesPerUI

	// The stream must outlast the response tail for the eye to settle.
	minSymbols := len(sbr.Samples)/sp + 10
	numSymbols := numUIs
	if numSymbols < minSymbols {
		numSymbols = minSymbols
	}

	symbols := prbs7Symbols(numSymbols)

	waveLen := numSymbols*sp + len(sbr.Samples)
	wave := make([]float64, waveLen)
	for i, sym := range symbols {
		base := i * sp
		for k, v := range sbr.Samples {
			wave[base+k] += sym * v
		}
	}

	eyeLen := 2 * sp
	start := len(sbr.Samples) - 1
	settled := wave[start:]

	numTraces := len(settled) / eyeLen
	if numTraces == 0 {
		return nil
	}

	traces := make([][]float64, numTraces)
	for i := range traces {
		traces[i] = settled[i*eyeLen : (i+1)*eyeLen]
	}

	return traces
}

// Scan folds the eye and extracts its metrics. vppMV scales the normalized
// three-unit PAM4 swing to the configured transmit swing.
func (a *Analyzer) Scan(sbr *link.SBR, vppMV float64, numUIs int) Metrics {
	traces := a.FoldEye(sbr, numUIs)
	if len(traces) == 0 {
		return Metrics{}
	}

	mvPerUnit := vppMV / 3

	vert := a.verticalOpening(traces) * mvPerUnit
	horiz := a.horizontalOpening(traces)

	uiPS := sbr.UISeconds * 1e12
	rlm := vert * horiz / uiPS

	return Metrics{VerticalMV: vert, HorizontalUI: horiz, RLM: rlm}
}

// verticalOpening sweeps every sampling instant in the two-UI window and
// returns the best worst-case sub-eye opening in normalized units. A closed
// eye reports a negative opening.
func (a *Analyzer) verticalOpening(traces [][]float64) float64 {
	eyeLen := len(traces[0])
	best := math.Inf(-1)

	for col := 0; col < eyeLen; col++ {
		worst := math.Inf(1)
		found := false

		for _, th := range pam4Thresholds {
			minAbove := math.Inf(1)
			maxBelow := math.Inf(-1)

			for _, tr := range traces {
				v := tr[col]
				if v > th && v < minAbove {
					minAbove = v
				}
				if v < th && v > maxBelow {
					maxBelow = v
				}
			}

			if math.IsInf(minAbove, 1) || math.IsInf(maxBelow, -1) {
				continue
			}

			found = true
			if open := minAbove - maxBelow; open < worst {
				worst = open
			}
		}

		if found && worst > best {
			best = worst
		}
	}

	if math.IsInf(best, -1) {
		return 0
	}
	return best
}

// horizontalOpening measures the narrowest span between the first and last
// zero-threshold crossings over all traces, in UI. No crossings means the
// eye is horizontally closed.
func (a *Analyzer) horizontalOpening(traces [][]float64) float64 {
	narrowest := math.Inf(1)

	for _, tr := range traces {
		first, last := -1, -1
		for i := 1; i < len(tr); i++ {
			if (tr[i-1] < 0) != (tr[i] < 0) {
				if first < 0 {
					first = i
				}
				last = i
			}
		}

		if first < 0 || last == first {
			continue
		}

		width := float64(last-first) / float64(a.samplesPerUI)
		if width < narrowest {
			narrowest = width
		}
	}

	if math.IsInf(narrowest, 1) {
		return 0
	}
	return narrowest
}
