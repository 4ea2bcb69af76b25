// Package eq searches quantized equalizer tap weights that minimize residual
// inter-symbol interference on a single-bit response.
package eq

import (
	"math"

	"github.com/serdeslab/linksim/link"
)

// PreCursorTaps is how many of the FFE taps sit before the main cursor. With
// the common four-tap configuration the layout is one pre-cursor and three
// post-cursors around the derived main cursor.
const PreCursorTaps = 1

// MaxTotalTapWeight bounds the summed tap magnitude. The TX driver has a
// fixed peak-to-peak swing, so every mV spent on cursors comes out of the
// main cursor; beyond this bound the main cursor collapses.
const MaxTotalTapWeight = 0.6

// ISIWindowUIs is the span over which residual ISI is accumulated.
const ISIWindowUIs = 20

// ApplyFFE convolves the single-bit response with the UI-spaced tap vector.
// The main-cursor weight is derived from the taps so total swing is
// preserved.
func ApplyFFE(sbr *link.SBR, cfg link.EqualizerConfig) *link.SBR {
	sp := sbr.SamplesPerUI
	main := cfg.MainCursor()

	out := make([]float64, len(sbr.Samples))
	for k := range out {
		v := main * sbr.Samples[k]
		for ti, tap := range cfg.FFETaps {
			if tap == 0 {
				continue
			}
			// Tap ti sits at UI offset (ti - PreCursorTaps), skipping 0.
			off := ti - PreCursorTaps
			if off >= 0 {
				off++
			}
			idx := k - off*sp
			if idx >= 0 && idx < len(sbr.Samples) {
				v += tap * sbr.Samples[idx]
			}
		}
		out[k] = v
	}

	return &link.SBR{
		Samples:      out,
		SamplesPerUI: sp,
		UISeconds:    sbr.UISeconds,
	}
}

// ISICost is the optimizer objective: residual UI-spaced ISI normalized by
// the main-cursor height of the equalized response. A collapsed cursor is
// infinitely bad.
func ISICost(sbr *link.SBR, cfg link.EqualizerConfig) float64 {
	eqd := ApplyFFE(sbr, cfg)

	cursor := eqd.CursorHeight()
	if cursor <= 0 {
		return math.Inf(1)
	}

	return eqd.ISI(ISIWindowUIs) / cursor
}

// SeedTaps builds a starting tap vector from a measured ISI-to-main ratio,
// loading the first post-cursor with the classic single-tap solution
// c1 = -isi / (main + isi).
func SeedTaps(isiMV, vMainMV float64, quant link.TapQuant, numTaps int) []float64 {
	taps := make([]float64, numTaps)
	if vMainMV+isiMV <= 0 {
		return taps
	}

	c1 := -isiMV / (vMainMV + isiMV)
	taps[PreCursorTaps] = quant.Quantize(c1)

	return taps
}

func sumAbs(taps []float64) float64 {
	total := 0.0
	for _, t := range taps {
		total += math.Abs(t)
	}
	return total
}
