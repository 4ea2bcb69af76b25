package eq

import (
	"github.com/serdeslab/linksim/link"
)

// DefaultBudget is the optimizer's iteration budget. Each iteration sweeps
// every tap in both directions at the current step size.
const DefaultBudget = 64

// DefaultTolerance stops the search once a full sweep improves the cost by
// less than this much.
const DefaultTolerance = 1e-6

// Result reports the outcome of one optimization run.
type Result struct {
	Config     link.EqualizerConfig
	StartCost  float64
	FinalCost  float64
	Iterations int

	// Improved is false when no quantized configuration beat the starting
	// point; the starting configuration is then returned unchanged, a
	// degenerate but valid result.
	Improved bool
}

// Optimize runs a deterministic coordinate descent over the quantized tap
// lattice. Candidate taps are projected back onto the legal quantized range
// at every step; the step size shrinks geometrically from half the
// coefficient range down to one lattice LSB. There is no randomness: a fixed
// starting point and step schedule always reproduce the same taps.
func Optimize(
	sbr *link.SBR,
	start link.EqualizerConfig,
	budget int,
	tol float64,
) (Result, error) {
	if sbr == nil || len(sbr.Samples) == 0 {
		return Result{}, &link.DataError{
			Param:  "sbr",
			Detail: "no single-bit response to optimize against",
		}
	}

	if len(start.FFETaps) == 0 {
		return Result{}, &link.ConfigError{
			Param: "ffe_taps", Value: 0, Bound: 1,
			Why: "optimizer needs at least one tap",
		}
	}

	if start.Quant.Bits < 1 || start.Quant.Bits > 16 {
		return Result{}, &link.ConfigError{
			Param: "tap_resolution_bits", Value: float64(start.Quant.Bits),
			Bound: 16, Why: "tap resolution outside representable range",
		}
	}

	if budget <= 0 {
		budget = DefaultBudget
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}

	// Project the starting point onto the lattice.
	cur := start.Clone()
	for i, t := range cur.FFETaps {
		cur.FFETaps[i] = cur.Quant.Quantize(t)
	}

	curCost := ISICost(sbr, cur)
	startCost := curCost

	quant := cur.Quant
	lsb := quant.Step()
	step := (quant.Max - quant.Min) / 2

	iters := 0
	for iters < budget && step >= lsb/2 {
		iters++
		sweepStart := curCost

		for ti := range cur.FFETaps {
			for _, dir := range [2]float64{1, -1} {
				cand := cur.Clone()
				cand.FFETaps[ti] = quant.Quantize(cand.FFETaps[ti] + dir*step)

				if cand.FFETaps[ti] == cur.FFETaps[ti] {
					continue
				}
				if sumAbs(cand.FFETaps) > MaxTotalTapWeight {
					continue
				}

				c := ISICost(sbr, cand)
				if c < curCost {
					cur = cand
					curCost = c
				}
			}
		}

		if sweepStart-curCost < tol {
			if step < lsb {
				break
			}
			step /= 2
		}
	}

	return Result{
		Config:     cur,
		StartCost:  startCost,
		FinalCost:  curCost,
		Iterations: iters,
		Improved:   curCost < startCost-tol,
	}, nil
}
