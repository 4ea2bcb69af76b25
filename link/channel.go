package link

import (
	"math"
	"math/cmplx"
	"sort"
)

// minChannelPoints is the smallest frequency grid that still supports a
// meaningful interpolation of the differential transfer function.
const minChannelPoints = 8

// ChannelResponse is a frequency-sampled differential transfer function.
// It is immutable once constructed and owned by the run that created it.
type ChannelResponse struct {
	freqGHz []float64
	sdd21   []complex128
}

// NewChannelResponse validates a frequency grid and the matching complex
// transfer samples. The grid must be strictly ascending.
func NewChannelResponse(freqGHz []float64, sdd21 []complex128) (*ChannelResponse, error) {
	if len(freqGHz) != len(sdd21) {
		return nil, &DataError{
			Param:  "sdd21",
			Detail: "frequency grid and sample count differ",
		}
	}

	if len(freqGHz) < minChannelPoints {
		return nil, &DataError{
			Param:  "freqGHz",
			Detail: "insufficient frequency samples for interpolation",
		}
	}

	if !sort.Float64sAreSorted(freqGHz) {
		return nil, &DataError{
			Param:  "freqGHz",
			Detail: "frequency grid is not ascending",
		}
	}

	for i := 1; i < len(freqGHz); i++ {
		if freqGHz[i] == freqGHz[i-1] {
			return nil, &DataError{
				Param:  "freqGHz",
				Detail: "frequency grid has duplicate points",
			}
		}
	}

	c := &ChannelResponse{
		freqGHz: append([]float64(nil), freqGHz...),
		sdd21:   append([]complex128(nil), sdd21...),
	}

	return c, nil
}

// NumPoints returns the number of frequency samples.
func (c *ChannelResponse) NumPoints() int { return len(c.freqGHz) }

// MaxFreqGHz returns the upper edge of the sampled grid.
func (c *ChannelResponse) MaxFreqGHz() float64 {
	return c.freqGHz[len(c.freqGHz)-1]
}

// At linearly interpolates the transfer function at fGHz. Queries beyond the
// grid return a DataError unless allowExtrap is set, in which case the last
// complex sample is extended flat. The grid never extrapolates silently.
func (c *ChannelResponse) At(fGHz float64, allowExtrap bool) (complex128, error) {
	n := len(c.freqGHz)

	if fGHz < c.freqGHz[0] || fGHz > c.freqGHz[n-1] {
		if !allowExtrap {
			return 0, &DataError{
				Param:  "freqGHz",
				Detail: "query outside sampled grid without extrapolation policy",
			}
		}

		if fGHz < c.freqGHz[0] {
			return c.sdd21[0], nil
		}

		return c.sdd21[n-1], nil
	}

	i := sort.SearchFloat64s(c.freqGHz, fGHz)
	if i < n && c.freqGHz[i] == fGHz {
		return c.sdd21[i], nil
	}

	lo, hi := i-1, i
	t := (fGHz - c.freqGHz[lo]) / (c.freqGHz[hi] - c.freqGHz[lo])
	re := real(c.sdd21[lo]) + t*(real(c.sdd21[hi])-real(c.sdd21[lo]))
	im := imag(c.sdd21[lo]) + t*(imag(c.sdd21[hi])-imag(c.sdd21[lo]))

	return complex(re, im), nil
}

// NyquistLossDB returns insertion loss in dB at the Nyquist frequency of the
// given symbol rate, using the nearest grid point. A transfer magnitude of
// zero reports a -100 dB floor instead of -Inf.
func (c *ChannelResponse) NyquistLossDB(baudGBd float64) float64 {
	nyquist := NyquistGHz(baudGBd)

	best := 0
	bestDist := math.Inf(1)
	for i, f := range c.freqGHz {
		d := math.Abs(f - nyquist)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}

	mag := cmplx.Abs(c.sdd21[best])
	if mag == 0 {
		return -100.0
	}

	return 20 * math.Log10(mag)
}

// SBR is the time-domain single-bit response: the waveform of one isolated
// transmitted symbol through the channel and linear path. Sample values are
// normalized to a unit transmit pulse.
type SBR struct {
	Samples      []float64
	SamplesPerUI int
	UISeconds    float64
}

// CursorIndex returns the index of the main cursor (the response peak).
func (s *SBR) CursorIndex() int {
	best := 0
	for i, v := range s.Samples {
		if v > s.Samples[best] {
			best = i
		}
	}
	return best
}

// CursorHeight returns the normalized main-cursor amplitude.
func (s *SBR) CursorHeight() float64 {
	return s.Samples[s.CursorIndex()]
}

// CursorSlope estimates the steepest signal slope into the main cursor in
// normalized units per second. The waterfall uses it to convert timing
// uncertainty into vertical eye closure.
func (s *SBR) CursorSlope() float64 {
	cursor := s.CursorIndex()
	lead := 5
	if cursor < lead {
		lead = cursor
	}
	if lead == 0 {
		return 0
	}

	dt := s.UISeconds / float64(s.SamplesPerUI)
	dv := s.Samples[cursor] - s.Samples[cursor-lead]

	return dv / (float64(lead) * dt)
}

// ISI sums the absolute UI-spaced cursor amplitudes around the main cursor,
// excluding the cursor itself, over a +-window UIs span. The result is in
// the same normalized units as the samples.
func (s *SBR) ISI(windowUIs int) float64 {
	cursor := s.CursorIndex()
	sp := s.SamplesPerUI

	total := 0.0
	for k := -windowUIs; k <= windowUIs; k++ {
		if k == 0 {
			continue
		}
		idx := cursor + k*sp
		if idx < 0 || idx >= len(s.Samples) {
			continue
		}
		total += math.Abs(s.Samples[idx])
	}

	return total
}

// PostCursor returns the amplitude k UIs after the main cursor, or 0 when the
// tap falls outside the response.
func (s *SBR) PostCursor(k int) float64 {
	idx := s.CursorIndex() + k*s.SamplesPerUI
	if idx < 0 || idx >= len(s.Samples) {
		return 0
	}
	return s.Samples[idx]
}
