// Package cdr models clock-path jitter injection and the discrete-time
// clock-and-data-recovery loop that tracks timing phase from the received
// signal.
package cdr

import "math"

// Clock distribution constants for 3nm-class metal.
const (
	propDelayPSPerMM = 6.7 // propagation delay on metal
	jitterFloorFS    = 150 // intrinsic PLL RJ
	jitterPerMMFS    = 50  // additive jitter from supply noise
	deskewStepFS     = 150 // resolution of one deskew leg

	// berSigma is the RJ multiple budgeted for a 1e-12 BER.
	berSigma = 7
)

// PathBudget is the horizontal closure contributed by clock distribution.
type PathBudget struct {
	UIps              float64
	TotalRJps         float64
	ResidualSkewPS    float64
	TotalTaxPS        float64
	MarginUI          float64
	WithinDeskewRange bool
}

// ClockPathBudget computes the jitter and skew budget of a clock path of the
// given length. PLL jitter and path-induced jitter combine root-sum-square;
// deterministic skew is bounded by half a deskew step.
func ClockPathBudget(baudGBd, pathMM float64, deskewLegs int) PathBudget {
	uiPS := 1000.0 / baudGBd

	pathJitterFS := pathMM * jitterPerMMFS
	totalRJFS := math.Sqrt(jitterFloorFS*jitterFloorFS + pathJitterFS*pathJitterFS)
	totalRJPS := totalRJFS / 1000

	residualSkewPS := deskewStepFS / 1000.0 / 2

	maxCorrectionPS := deskewStepFS * float64(deskewLegs) / 1000
	propDelayPS := pathMM * propDelayPSPerMM

	totalTaxPS := berSigma*totalRJPS + residualSkewPS

	return PathBudget{
		UIps:              uiPS,
		TotalRJps:         totalRJPS,
		ResidualSkewPS:    residualSkewPS,
		TotalTaxPS:        totalTaxPS,
		MarginUI:          (uiPS - totalTaxPS) / uiPS,
		WithinDeskewRange: maxCorrectionPS > propDelayPS,
	}
}

// RJFractionUI returns the RMS random jitter as a fraction of one UI.
func (b PathBudget) RJFractionUI() float64 {
	return b.TotalRJps / b.UIps
}
