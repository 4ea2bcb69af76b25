package link

import "math"

// TapQuant describes the legal coefficient lattice of one equalizer tap: a
// bounded range represented at a fixed resolution in bits.
type TapQuant struct {
	Min  float64
	Max  float64
	Bits int
}

// Step returns the lattice spacing. The range is divided into 2^bits steps
// so that a symmetric range keeps zero on the lattice.
func (q TapQuant) Step() float64 {
	return (q.Max - q.Min) / float64(int(1)<<q.Bits)
}

// Quantize snaps v onto the lattice, clamping to the configured range.
func (q TapQuant) Quantize(v float64) float64 {
	if v < q.Min {
		v = q.Min
	}
	if v > q.Max {
		v = q.Max
	}

	step := q.Step()
	n := math.Round((v - q.Min) / step)

	return q.Min + n*step
}

// InRange reports whether v lies within the configured range.
func (q TapQuant) InRange(v float64) bool {
	return v >= q.Min && v <= q.Max
}

// Representable reports whether v sits on the quantization lattice.
func (q TapQuant) Representable(v float64) bool {
	if !q.InRange(v) {
		return false
	}
	step := q.Step()
	n := (v - q.Min) / step
	return math.Abs(n-math.Round(n)) < 1e-9
}

// EqualizerConfig holds the linear and decision-feedback equalizer settings.
// It is mutated only by the optimizer during search and frozen once it is
// passed downstream.
type EqualizerConfig struct {
	// FFETaps are the TX feed-forward cursor weights. The main cursor is
	// derived as 1 - sum(|taps|) and is not itself a lattice point.
	FFETaps []float64
	Quant   TapQuant

	CTLEZeroFactor  float64
	CTLEPole1Factor float64
	CTLEPole2Factor float64

	// DFETapsMV are the decision-feedback tap magnitudes in mV. Tap one is
	// subject to a hard electrical limit independent of technology.
	DFETapsMV      []float64
	DFETap1LimitMV float64
}

// Clone returns a deep copy so that optimizer candidates never alias the
// frozen configuration handed downstream.
func (c EqualizerConfig) Clone() EqualizerConfig {
	c.FFETaps = append([]float64(nil), c.FFETaps...)
	c.DFETapsMV = append([]float64(nil), c.DFETapsMV...)
	return c
}

// MainCursor returns the derived main-cursor weight.
func (c EqualizerConfig) MainCursor() float64 {
	main := 1.0
	for _, t := range c.FFETaps {
		main -= math.Abs(t)
	}
	return main
}

// CheckDFE reports the tap-one electrical constraint. The violation carries a
// penalty instead of clipping the tap.
func (c EqualizerConfig) CheckDFE() (ConstraintViolation, bool) {
	if len(c.DFETapsMV) == 0 {
		return ConstraintViolation{}, false
	}

	tap1 := c.DFETapsMV[0]
	if tap1 <= c.DFETap1LimitMV {
		return ConstraintViolation{}, false
	}

	v := ConstraintViolation{
		Param: "dfe_tap1_mv",
		Value: tap1,
		Limit: c.DFETap1LimitMV,
	}

	return v, true
}

// LatencyArch selects the CDR latency architecture. Both architectures run
// the same recovery loop; they differ only in the latency parameter fed to
// the timing model and the duplication factor fed to the cost model.
type LatencyArch int

const (
	// LatencyStandard is the full-depth pipelined detection path.
	LatencyStandard LatencyArch = iota
	// LatencySpeculative unrolls the detection loop to one effective cycle
	// by duplicating detection paths.
	LatencySpeculative
)

func (a LatencyArch) String() string {
	switch a {
	case LatencyStandard:
		return "standard"
	case LatencySpeculative:
		return "speculative"
	default:
		return "unknown"
	}
}

// Cycles returns the effective loop latency in cycles.
func (a LatencyArch) Cycles() int {
	if a == LatencySpeculative {
		return 1
	}
	return 12
}

// Duplication returns how many parallel detection paths the architecture
// instantiates to reach its effective latency from the 24-deep baseline
// detection loop. The unroll tax in the cost model scales with this factor.
func (a LatencyArch) Duplication() int {
	if a == LatencySpeculative {
		return 24
	}
	return 2
}

// ClockingConfig describes the clock distribution path and the CDR loop.
type ClockingConfig struct {
	PathLengthMM     float64
	LoopBandwidthMHz float64
	Arch             LatencyArch
	PIResolution     int
	DeskewLegs       int

	// LatencyOverrideCycles, when positive, replaces the architecture's
	// nominal latency. Monte Carlo perturbations use it to model logic
	// speed variance without switching architectures.
	LatencyOverrideCycles int
}

// LatencyCycles returns the loop latency in effect.
func (c ClockingConfig) LatencyCycles() int {
	if c.LatencyOverrideCycles > 0 {
		return c.LatencyOverrideCycles
	}
	return c.Arch.Cycles()
}

// Perturbation is one Monte Carlo draw over the architectural knobs that
// process variation reaches: logic speed, DFE summer offset, PLL loop
// bandwidth, and channel/package ISI.
type Perturbation struct {
	LatencyCycles int
	DFETapErrMV   float64
	BandwidthMHz  float64
	ISIExtraMV    float64
}
