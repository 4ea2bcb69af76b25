// Package signoff composes the linear path model, equalizer optimizer, CDR
// loop, cost model, and thermal solver into one margin sign-off run and
// produces the cumulative waterfall ledger.
package signoff

import (
	"github.com/serdeslab/linksim/cdr"
	"github.com/serdeslab/linksim/cost"
	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/phy"
	"github.com/serdeslab/linksim/thermal"
)

// Scenario is the complete, immutable description of one sign-off run. Every
// run receives its own copy; nothing here is shared mutable state.
type Scenario struct {
	Channel *link.ChannelResponse
	BaudGBd float64

	// VppMV is the transmit peak-to-peak swing. The ideal PAM4 eye opens
	// to one third of it.
	VppMV float64

	Phy       phy.Params
	Equalizer link.EqualizerConfig
	Clocking  link.ClockingConfig
	Tech      cost.Tech
	Thermal   thermal.Params

	AmbientC      float64
	PowerBudgetMW float64

	// DFEEfficiency is the fraction of each targeted post-cursor the
	// decision feedback actually cancels.
	DFEEfficiency float64

	// NoiseFloorMV is margin loss that belongs to no stage, such as
	// crosstalk and supply noise. It shows up as the unattributed residual
	// of the waterfall.
	NoiseFloorMV float64

	OptimizerBudget    int
	OptimizerTolerance float64

	// CDROffsetUI is the static phase offset the recovery loop must
	// acquire before tracking.
	CDROffsetUI float64
	Jitter      cdr.JitterProfile
	RecordUIs   int

	// DeclaredNyquistLossDB cross-checks the architectural input against
	// the measured channel. Zero disables the check.
	DeclaredNyquistLossDB float64

	EyeScanUIs int
}

// DefaultScenario returns the 64 GBd PAM4 baseline. The channel must still
// be supplied.
func DefaultScenario() Scenario {
	return Scenario{
		BaudGBd: 64,
		VppMV:   420,

		Phy: phy.DefaultParams(),
		Equalizer: link.EqualizerConfig{
			FFETaps:         make([]float64, 4),
			Quant:           link.TapQuant{Min: -0.3, Max: 0.3, Bits: 6},
			CTLEZeroFactor:  0.25,
			CTLEPole1Factor: 1.0,
			CTLEPole2Factor: 1.5,
			DFETapsMV:       []float64{18, 10, 6, 3},
			DFETap1LimitMV:  30,
		},
		Clocking: link.ClockingConfig{
			PathLengthMM:     1.0,
			LoopBandwidthMHz: 20,
			Arch:             link.LatencyStandard,
			PIResolution:     64,
			DeskewLegs:       4,
		},
		Tech:    cost.DefaultTech(),
		Thermal: thermal.DefaultParams(),

		AmbientC:      45,
		DFEEfficiency: 0.85,
		NoiseFloorMV:  4.0,

		OptimizerBudget:    64,
		OptimizerTolerance: 1e-6,

		CDROffsetUI: 0.35,
		Jitter:      cdr.JitterProfile{FreqMHz: 5, AmplitudeUI: 0.03},
		RecordUIs:   2048,

		EyeScanUIs: 1000,
	}
}
