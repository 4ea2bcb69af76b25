// Package waterfall assembles per-stage margin figures into the cumulative,
// stage-ordered ledger and ranks each stage's loss contribution.
package waterfall

import (
	"sort"

	"github.com/serdeslab/linksim/link"
)

// Builder accumulates cumulative stage states in signal-path order. Stages
// are pushed in order and never reordered: a waterfall delta is always
// stage[i] minus stage[i-1].
type Builder struct {
	stages    []link.StageMargin
	penalties []link.ConstraintViolation
	junctionC float64
}

// NewBuilder returns an empty ledger builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends the cumulative state at one stage. The values are the link's
// total margin and power at that point, not the stage's delta.
func (b *Builder) Add(stage link.Stage, vertMV, horizUI, powerMW float64) error {
	if len(b.stages) > 0 && stage <= b.stages[len(b.stages)-1].Stage {
		return &link.DataError{
			Param:  "stage",
			Detail: "stages must be pushed in signal-path order",
		}
	}

	b.stages = append(b.stages, link.StageMargin{
		Stage:        stage,
		VerticalMV:   vertMV,
		HorizontalUI: horizUI,
		PowerMW:      powerMW,
	})

	return nil
}

// Penalize records a constraint violation on the ledger. The caller is
// responsible for having already reflected the penalty in the stage margins.
func (b *Builder) Penalize(v link.ConstraintViolation) {
	b.penalties = append(b.penalties, v)
}

// SetJunction records the converged junction temperature.
func (b *Builder) SetJunction(tjC float64) {
	b.junctionC = tjC
}

// Build finalizes the ledger. idealMV is the maximum achievable vertical
// margin the attribution is measured against; noiseFloorMV is loss that
// belongs to no stage and is reported as the unattributed residual.
func (b *Builder) Build(idealMV, noiseFloorMV float64) (*link.MarginWaterfall, error) {
	if len(b.stages) == 0 {
		return nil, &link.DataError{
			Param:  "stages",
			Detail: "empty stage ledger",
		}
	}

	final := b.stages[len(b.stages)-1]

	w := &link.MarginWaterfall{
		Stages:            append([]link.StageMargin(nil), b.stages...),
		FinalVerticalMV:   final.VerticalMV,
		FinalHorizontalUI: final.HorizontalUI,
		TotalPowerMW:      final.PowerMW,
		Penalties:         append([]link.ConstraintViolation(nil), b.penalties...),
		JunctionC:         b.junctionC,
	}

	b.attribute(w, idealMV, noiseFloorMV)

	return w, nil
}

// attribute ranks per-stage losses against the ideal margin. Percentages are
// taken of the total loss including the noise floor, so they sum to at most
// 100 with the remainder surfaced in UnattributedPercent.
func (b *Builder) attribute(w *link.MarginWaterfall, idealMV, noiseFloorMV float64) {
	if noiseFloorMV < 0 {
		noiseFloorMV = 0
	}

	var entries []link.Attribution

	// The first stage's loss is measured against the ideal; every later
	// stage against its predecessor.
	prev := idealMV
	for _, s := range w.Stages {
		if loss := prev - s.VerticalMV; loss > 0 {
			entries = append(entries, link.Attribution{
				Stage:  s.Stage,
				LossMV: loss,
			})
		}
		prev = s.VerticalMV
	}

	totalLoss := noiseFloorMV
	for _, e := range entries {
		totalLoss += e.LossMV
	}

	if totalLoss <= 0 {
		w.Attribution = nil
		w.UnattributedPercent = 0
		return
	}

	for i := range entries {
		entries[i].Percent = entries[i].LossMV / totalLoss * 100
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LossMV > entries[j].LossMV
	})

	w.Attribution = entries
	w.UnattributedPercent = noiseFloorMV / totalLoss * 100
}
