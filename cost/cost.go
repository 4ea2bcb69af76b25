// Package cost maps a concrete stage configuration to power and area.
// Every contribution is individually retrievable so the margin waterfall can
// attribute power stage by stage.
package cost

import (
	"math"

	"github.com/serdeslab/linksim/link"
)

// ffeDACPowerMWPerUnit is the TX DAC power cost per unit of summed tap
// weight.
const ffeDACPowerMWPerUnit = 8.5

// Tech is the technology cost table, normally loaded from the tech YAML.
// It is immutable and passed explicitly into every estimate.
type Tech struct {
	DFETapPowerMW float64
	DFETapAreaUM2 float64

	CTLEStages       int
	CTLEStagePowerMW float64
	VGAPowerMW       float64
	ADCPowerMW       float64

	PLLBasePowerMW  float64
	PLLPerMMPowerMW float64

	// CDRBasePowerMW is the loop power at the baseline pipeline depth.
	// The two-term model scales it in opposite directions with depth.
	CDRBasePowerMW   float64
	CDRBaselineDepth int
	CDRUnrollWeight  float64

	TxDriverLegs     int
	TxDriverPerLegMW float64

	BaseAreaUM2 float64
}

// DefaultTech returns the 3nm-class cost table.
func DefaultTech() Tech {
	return Tech{
		DFETapPowerMW:    1.5,
		DFETapAreaUM2:    25,
		CTLEStages:       3,
		CTLEStagePowerMW: 0.7,
		VGAPowerMW:       1.2,
		ADCPowerMW:       15.0,
		PLLBasePowerMW:   9.0,
		PLLPerMMPowerMW:  0.5,
		CDRBasePowerMW:   12.0,
		CDRBaselineDepth: 24,
		CDRUnrollWeight:  0.1,
		TxDriverLegs:     30,
		TxDriverPerLegMW: 0.25,
		BaseAreaUM2:      1500,
	}
}

// Breakdown is the stage-attributable power and area estimate.
type Breakdown struct {
	TxDriverMW    float64
	FFEMW         float64
	AFEMW         float64
	DFEMW         float64
	PLLMW         float64
	CDRPipelineMW float64
	CDRUnrollMW   float64

	TotalMW        float64
	AreaUM2        float64
	EnergyPJPerBit float64
}

// CDRMW is the combined two-term CDR power.
func (b Breakdown) CDRMW() float64 {
	return b.CDRPipelineMW + b.CDRUnrollMW
}

// Estimate sums the component-wise power and area contributions for the
// final configuration. All returned values are non-negative.
func Estimate(
	t Tech,
	eqCfg link.EqualizerConfig,
	clk link.ClockingConfig,
	baudGBd float64,
	targetZ0 float64,
) Breakdown {
	var b Breakdown

	// Driver power scales inversely with impedance: P = V^2 / R.
	b.TxDriverMW = float64(t.TxDriverLegs) * t.TxDriverPerLegMW * (100 / targetZ0)

	tapWeight := 0.0
	for _, tap := range eqCfg.FFETaps {
		tapWeight += math.Abs(tap)
	}
	b.FFEMW = tapWeight * ffeDACPowerMWPerUnit

	b.AFEMW = float64(t.CTLEStages)*t.CTLEStagePowerMW + t.VGAPowerMW + t.ADCPowerMW

	b.DFEMW = float64(len(eqCfg.DFETapsMV)) * t.DFETapPowerMW

	b.PLLMW = t.PLLBasePowerMW + t.PLLPerMMPowerMW*clk.PathLengthMM

	b.CDRPipelineMW, b.CDRUnrollMW = cdrPower(t, clk)

	b.TotalMW = b.TxDriverMW + b.FFEMW + b.AFEMW + b.DFEMW + b.PLLMW +
		b.CDRPipelineMW + b.CDRUnrollMW

	b.AreaUM2 = float64(len(eqCfg.DFETapsMV))*t.DFETapAreaUM2 + t.BaseAreaUM2

	dataRateGbps := 2 * baudGBd // PAM4 carries two bits per symbol
	b.EnergyPJPerBit = b.TotalMW / dataRateGbps

	return b
}

// cdrPower is the two-term latency/power tradeoff: the pipeline term shrinks
// with shallower pipelines while the unroll term grows with the duplicated
// detection paths that buy the latency back. The terms oppose each other
// monotonically; they are never lumped.
func cdrPower(t Tech, clk link.ClockingConfig) (pipelineMW, unrollMW float64) {
	baseline := float64(t.CDRBaselineDepth)
	d := float64(clk.LatencyCycles())

	pipelineMW = t.CDRBasePowerMW * d / baseline

	// The architecture's duplication factor, rescaled when a latency
	// override moves the depth away from the architecture's nominal.
	dup := float64(clk.Arch.Duplication()*clk.Arch.Cycles()) / d
	if dup < 1 {
		dup = 1
	}
	unrollMW = t.CDRBasePowerMW * t.CDRUnrollWeight * (dup - 1)

	return pipelineMW, unrollMW
}
