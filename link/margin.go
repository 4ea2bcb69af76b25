package link

// Stage identifies one point of the cumulative margin ledger. The order is
// fixed by the signal path and must never be reordered: waterfall deltas are
// always stage[i] - stage[i-1].
type Stage int

const (
	StageTxDriver Stage = iota
	StageRawLink
	StageTxFFE
	StageCTLE
	StageDFE
	StageCDR
	StageThermal

	NumStages
)

func (s Stage) String() string {
	switch s {
	case StageTxDriver:
		return "TX Driver"
	case StageRawLink:
		return "Raw Link"
	case StageTxFFE:
		return "+ FFE (Tx)"
	case StageCTLE:
		return "+ CTLE (Rx)"
	case StageDFE:
		return "+ DFE (Rx)"
	case StageCDR:
		return "+ CDR"
	case StageThermal:
		return "+ Thermal"
	default:
		return "unknown"
	}
}

// StageMargin is the cumulative link state at one pipeline stage: vertical
// eye margin, horizontal eye margin, and power consumed up to that point.
type StageMargin struct {
	Stage        Stage
	VerticalMV   float64
	HorizontalUI float64
	PowerMW      float64
}

// Attribution is one entry of the ranked loss ledger.
type Attribution struct {
	Stage   Stage
	LossMV  float64
	Percent float64
}

// MarginWaterfall is the stage-ordered cumulative margin ledger of one run,
// with the final net margin and the ranked loss attribution. It is a derived,
// read-only output.
type MarginWaterfall struct {
	Stages []StageMargin

	FinalVerticalMV   float64
	FinalHorizontalUI float64
	TotalPowerMW      float64

	// Attribution is sorted by loss magnitude, largest first. Percentages
	// sum to at most 100; the remainder is reported in
	// UnattributedPercent, never hidden.
	Attribution         []Attribution
	UnattributedPercent float64

	// Penalties carries every electrical constraint violated during the
	// run. The final margin already reflects their penalty values.
	Penalties []ConstraintViolation

	JunctionC float64
}

// Delta returns the margin and power change introduced by stage i relative
// to the previous cumulative state.
func (w *MarginWaterfall) Delta(i int) (dVerticalMV, dHorizontalUI, dPowerMW float64) {
	if i == 0 {
		s := w.Stages[0]
		return s.VerticalMV, s.HorizontalUI, s.PowerMW
	}

	cur, prev := w.Stages[i], w.Stages[i-1]

	return cur.VerticalMV - prev.VerticalMV,
		cur.HorizontalUI - prev.HorizontalUI,
		cur.PowerMW - prev.PowerMW
}

// Prediction is the fifteen-scalar output contract: seven stages' vertical
// and horizontal margins plus the predicted junction temperature.
type Prediction struct {
	VerticalMV   [NumStages]float64
	HorizontalUI [NumStages]float64
	JunctionC    float64
}

// Scalars flattens the prediction into the wire order consumed by reporting
// and surrogate collaborators: verticals, horizontals, junction temperature.
func (p Prediction) Scalars() [15]float64 {
	var out [15]float64
	for i := 0; i < int(NumStages); i++ {
		out[i] = p.VerticalMV[i]
		out[i+int(NumStages)] = p.HorizontalUI[i]
	}
	out[14] = p.JunctionC
	return out
}

// ArchInput is the ten-scalar architectural input contract.
type ArchInput struct {
	FFEPresets     [4]float64
	NyquistLossDB  float64
	AmbientC       float64
	JunctionGuessC float64
	PowerBudgetMW  float64
	BaudGBd        float64
	SamplesPerUI   int
}

// Scalars flattens the input into its wire order.
func (a ArchInput) Scalars() [10]float64 {
	return [10]float64{
		a.FFEPresets[0], a.FFEPresets[1], a.FFEPresets[2], a.FFEPresets[3],
		a.NyquistLossDB,
		a.AmbientC,
		a.JunctionGuessC,
		a.PowerBudgetMW,
		a.BaudGBd,
		float64(a.SamplesPerUI),
	}
}
