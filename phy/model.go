// Package phy models the linear signal path of a serial link: differential
// channel response, TX driver bandwidth limiting, CTLE compensation, and
// termination reflections, producing the time-domain single-bit response
// that every downstream stage consumes.
package phy

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/serdeslab/linksim/link"
)

// Params configures the linear path model. The same channel and Params
// always produce a bit-identical response: nothing in this package is
// randomized.
type Params struct {
	SamplesPerUI int
	FFTSize      int

	// DriverBWFactor sets the TX driver's -3 dB corner as a fraction of
	// the symbol rate. The driver is modeled as a 4th-order low-pass.
	DriverBWFactor float64

	CTLEZeroFactor  float64
	CTLEPole1Factor float64
	CTLEPole2Factor float64

	// TargetZ0 and RxTermZ set the differential reference and the RX
	// termination. Their mismatch determines the reflection magnitude.
	TargetZ0 float64
	RxTermZ  float64

	// ReflectionDelayUI is the round-trip delay of the termination
	// reflection in unit intervals.
	ReflectionDelayUI int

	// AllowExtrapolation is the explicit interpolation policy for
	// frequencies beyond the measured grid: when set, the grid edge value
	// is extended flat. When unset, such queries are a DataError.
	AllowExtrapolation bool
}

// DefaultParams returns the behavioral defaults used for 3nm-class links.
func DefaultParams() Params {
	return Params{
		SamplesPerUI:       64,
		FFTSize:            1 << 16,
		DriverBWFactor:     0.75,
		CTLEZeroFactor:     0.25,
		CTLEPole1Factor:    1.0,
		CTLEPole2Factor:    1.5,
		TargetZ0:           85,
		RxTermZ:            95,
		ReflectionDelayUI:  3,
		AllowExtrapolation: true,
	}
}

// Stages holds the single-bit response after each point of the linear path.
type Stages struct {
	TxPulse        *link.SBR
	PostChannel    *link.SBR
	PostCTLE       *link.SBR
	PostReflection *link.SBR
}

// Model converts a frequency-domain channel description into time-domain
// single-bit responses.
type Model struct {
	ch *link.ChannelResponse
	p  Params
}

// NewModel validates the configuration and binds it to a channel response.
func NewModel(ch *link.ChannelResponse, p Params) (*Model, error) {
	if ch == nil {
		return nil, &link.DataError{
			Param:  "channel",
			Detail: "no channel response supplied",
		}
	}

	if p.SamplesPerUI < 2 {
		return nil, &link.ConfigError{
			Param: "samples_per_ui", Value: float64(p.SamplesPerUI),
			Bound: 2, Why: "below minimum sampling density",
		}
	}

	if p.FFTSize < 1024 || p.FFTSize&(p.FFTSize-1) != 0 {
		return nil, &link.ConfigError{
			Param: "fft_size", Value: float64(p.FFTSize),
			Bound: 1024, Why: "must be a power of two of at least 1024",
		}
	}

	if p.DriverBWFactor <= 0 {
		return nil, &link.ConfigError{
			Param: "tx_driver_bw_limit_factor", Value: p.DriverBWFactor,
			Bound: 0, Why: "driver corner must be positive",
		}
	}

	return &Model{ch: ch, p: p}, nil
}

// SingleBitResponse returns the SBR through the complete linear path,
// including driver limiting, CTLE, and the termination reflection.
func (m *Model) SingleBitResponse(baudGBd float64) (*link.SBR, error) {
	stages, err := m.StageResponses(baudGBd)
	if err != nil {
		return nil, err
	}
	return stages.PostReflection, nil
}

// StageResponses computes the SBR at every point of the linear path. All
// stages share one frequency grid so cursors line up sample-for-sample.
func (m *Model) StageResponses(baudGBd float64) (*Stages, error) {
	if baudGBd <= 0 {
		return nil, &link.ConfigError{
			Param: "baud_gbd", Value: baudGBd,
			Bound: 0, Why: "symbol rate must be positive",
		}
	}

	ui := link.BaudUIps(baudGBd) * 1e-12
	sp := m.p.SamplesPerUI
	dt := ui / float64(sp)
	n := m.p.FFTSize

	fft := fourier.NewFFT(n)
	numCoeff := n/2 + 1

	chanSpec := make([]complex128, numCoeff)
	ctleSpec := make([]complex128, numCoeff)

	nyquistHz := link.NyquistGHz(baudGBd) * 1e9
	bwHz := m.p.DriverBWFactor * baudGBd * 1e9

	for i := 0; i < numCoeff; i++ {
		fHz := fft.Freq(i) / dt

		s21, err := m.ch.At(fHz/1e9, m.p.AllowExtrapolation)
		if err != nil {
			return nil, err
		}

		h := s21 * driverResponse(fHz, bwHz)
		chanSpec[i] = h
		ctleSpec[i] = h * ctleResponse(fHz, nyquistHz,
			m.p.CTLEZeroFactor, m.p.CTLEPole1Factor, m.p.CTLEPole2Factor)
	}

	postChannel := m.pulseResponse(fft, chanSpec, sp, ui)
	postCTLE := m.pulseResponse(fft, ctleSpec, sp, ui)

	stages := &Stages{
		TxPulse:        m.txPulse(sp, ui),
		PostChannel:    postChannel,
		PostCTLE:       postCTLE,
		PostReflection: m.addReflection(postCTLE),
	}

	return stages, nil
}

// pulseResponse inverse-transforms a spectrum and convolves the impulse
// response with a one-UI rectangular pulse.
func (m *Model) pulseResponse(
	fft *fourier.FFT,
	spec []complex128,
	sp int,
	ui float64,
) *link.SBR {
	n := m.p.FFTSize

	impulse := fft.Sequence(nil, spec)
	inv := 1.0 / float64(n)
	for i := range impulse {
		impulse[i] *= inv
	}

	// Rectangular-pulse convolution as a circular running sum. The window
	// wraps so the anticausal half of a zero-phase impulse still lands
	// under the cursor, and a transparent channel keeps a unit cursor.
	out := make([]float64, n)
	sum := 0.0
	for j := 0; j < sp; j++ {
		sum += impulse[(n-j)%n]
	}
	out[0] = sum
	for k := 1; k < n; k++ {
		sum += impulse[k] - impulse[(k-sp+n)%n]
		out[k] = sum
	}

	return &link.SBR{Samples: out, SamplesPerUI: sp, UISeconds: ui}
}

func (m *Model) txPulse(sp int, ui float64) *link.SBR {
	out := make([]float64, m.p.FFTSize)
	for i := 0; i < sp; i++ {
		out[i] = 1
	}
	return &link.SBR{Samples: out, SamplesPerUI: sp, UISeconds: ui}
}

// addReflection superimposes the delayed, attenuated copy produced by the
// RX termination mismatch.
func (m *Model) addReflection(sbr *link.SBR) *link.SBR {
	gamma := (m.p.RxTermZ - m.p.TargetZ0) / (m.p.RxTermZ + m.p.TargetZ0)
	shift := sbr.SamplesPerUI * m.p.ReflectionDelayUI

	out := make([]float64, len(sbr.Samples))
	for i := range out {
		out[i] = sbr.Samples[i]
		if i >= shift {
			out[i] += sbr.Samples[i-shift] * gamma
		}
	}

	return &link.SBR{
		Samples:      out,
		SamplesPerUI: sbr.SamplesPerUI,
		UISeconds:    sbr.UISeconds,
	}
}

// driverResponse is the 4th-order low-pass representing the TX driver's
// finite bandwidth.
func driverResponse(fHz, bwHz float64) complex128 {
	x := complex(0, fHz/bwHz)
	return 1 / (1 + x*x*x*x)
}

// ctleResponse is the 2-pole/1-zero compensation transfer function,
// normalized to unity DC gain. Zero and pole locations scale with the
// Nyquist frequency.
func ctleResponse(fHz, nyquistHz, zeroF, pole1F, pole2F float64) complex128 {
	wz := 2 * math.Pi * nyquistHz * zeroF
	wp1 := 2 * math.Pi * nyquistHz * pole1F
	wp2 := 2 * math.Pi * nyquistHz * pole2F

	s := complex(0, 2*math.Pi*fHz)
	h := (s + complex(wz, 0)) /
		((s + complex(wp1, 0)) * (s + complex(wp2, 0)))

	return h / complex(wz/(wp1*wp2), 0)
}
