// Package thermal predicts the junction temperature of the receiver block
// and the margin derate it implies. Leakage depends on temperature and
// temperature depends on power, so the operating point is found by a short
// fixed-point iteration.
package thermal

import "math"

// Params is the thermal model table, normally loaded from the tech YAML.
type Params struct {
	// StaticMWAt25C is the block leakage power at 25 C.
	StaticMWAt25C float64
	// DynamicMWNominal is the switching power at the reference swing and
	// a 0.5 activity factor.
	DynamicMWNominal float64

	MetalRhoOhmSq    float64
	MetalScaling     float64
	ActivityFactor   float64
	RefVppMV         float64
	HVT              bool

	// BaseRthCPerMW is the package thermal resistance for the compact
	// base layout; spreading improves it with the square root of area.
	BaseRthCPerMW float64
	BaseAreaUM2   float64

	// DerateMVPerC is the vertical margin lost per degree above the
	// derate knee.
	DerateMVPerC float64
	DerateKneeC  float64
}

// DefaultParams returns the calibrated 3nm-class thermal table.
func DefaultParams() Params {
	return Params{
		StaticMWAt25C:    4.0,
		DynamicMWNominal: 32.0,
		MetalRhoOhmSq:    0.022,
		MetalScaling:     2600.0,
		ActivityFactor:   0.5,
		RefVppMV:         420.0,
		BaseRthCPerMW:    0.42,
		BaseAreaUM2:      10.0,
		DerateMVPerC:     0.05,
		DerateKneeC:      85.0,
	}
}

// Report is the power-distribution breakdown at one temperature.
type Report struct {
	DeviceStaticMW  float64
	DeviceDynamicMW float64
	MetalMW         float64
	TotalMW         float64
}

// DistributionReport computes the block power at a given temperature and
// configuration. Leakage scales exponentially with temperature; dynamic
// power follows the square of the voltage swing; a DFE tap one driven past
// its electrical limit inflates both terms.
func DistributionReport(p Params, tempC, vppMV, dfeTap1MV, tap1LimitMV float64) Report {
	leakScale := math.Pow(1.5, (tempC-25)/10)

	static := p.StaticMWAt25C * leakScale
	if p.HVT {
		static *= 0.1
	}

	dynamic := p.DynamicMWNominal * (p.ActivityFactor / 0.5)
	if vppMV > 0 && p.RefVppMV > 0 {
		ratio := vppMV / p.RefVppMV
		dynamic *= ratio * ratio
	}

	if dfeTap1MV > tap1LimitMV {
		dynamic *= 1.5
		static *= 1.2
	}

	metal := p.MetalRhoOhmSq * p.ActivityFactor * p.ActivityFactor * p.MetalScaling

	return Report{
		DeviceStaticMW:  static,
		DeviceDynamicMW: dynamic,
		MetalMW:         metal,
		TotalMW:         static + dynamic + metal,
	}
}

// Solution is the converged thermal operating point.
type Solution struct {
	JunctionC  float64
	TotalMW    float64
	RthCPerMW  float64
	Iterations int
	Converged  bool
}

const (
	maxSolveIterations = 5
	solveToleranceC    = 0.5
)

// SolveJunction finds the steady-state junction temperature for a block of
// the given layout area carrying the given external pipeline power on top of
// its own dissipation.
func SolveJunction(
	p Params,
	ambientC float64,
	externalMW float64,
	areaUM2 float64,
	vppMV, dfeTap1MV, tap1LimitMV float64,
) Solution {
	rth := p.BaseRthCPerMW
	if areaUM2 > 0 && p.BaseAreaUM2 > 0 {
		rth = p.BaseRthCPerMW / math.Sqrt(areaUM2/p.BaseAreaUM2)
	}

	tj := ambientC + 25 // pessimistic first guess
	total := 0.0
	iters := 0
	converged := false

	for i := 0; i < maxSolveIterations; i++ {
		iters = i + 1

		rpt := DistributionReport(p, tj, vppMV, dfeTap1MV, tap1LimitMV)
		total = rpt.TotalMW + externalMW

		next := ambientC + total*rth
		if math.Abs(next-tj) < solveToleranceC {
			tj = next
			converged = true
			break
		}
		tj = next
	}

	return Solution{
		JunctionC:  tj,
		TotalMW:    total,
		RthCPerMW:  rth,
		Iterations: iters,
		Converged:  converged,
	}
}

// VerticalDerateMV is the eye-height cost of operating above the derate
// knee.
func VerticalDerateMV(p Params, junctionC float64) float64 {
	if junctionC <= p.DerateKneeC {
		return 0
	}
	return p.DerateMVPerC * (junctionC - p.DerateKneeC)
}
