package signoff

import "github.com/serdeslab/linksim/link"

// Table names used when a data recorder is attached.
const (
	stageTable   = "stage_margins"
	summaryTable = "run_summaries"
)

// StageRow is one recorded waterfall stage.
type StageRow struct {
	RunID        string
	Stage        string
	VerticalMV   float64
	HorizontalUI float64
	PowerMW      float64
}

// SummaryRow is the recorded one-line outcome of a run.
type SummaryRow struct {
	RunID             string
	LatencyCycles     int
	LoopBandwidthMHz  float64
	FinalVerticalMV   float64
	FinalHorizontalUI float64
	TotalPowerMW      float64
	JunctionC         float64
	Penalties         int
}

func (r *Runner) initTables() {
	r.recorder.CreateTable(stageTable, StageRow{})
	r.recorder.CreateTable(summaryTable, SummaryRow{})
}

// record appends one run's rows. Monte Carlo workers call this concurrently,
// so writes are serialized here.
func (r *Runner) record(res *Result, p link.Perturbation) {
	r.recorderMu.Lock()
	defer r.recorderMu.Unlock()

	for _, s := range res.Waterfall.Stages {
		r.recorder.InsertData(stageTable, StageRow{
			RunID:        r.id,
			Stage:        s.Stage.String(),
			VerticalMV:   s.VerticalMV,
			HorizontalUI: s.HorizontalUI,
			PowerMW:      s.PowerMW,
		})
	}

	clk := r.sc.Clocking
	latency := clk.LatencyCycles()
	if p.LatencyCycles > 0 {
		latency = p.LatencyCycles
	}
	bw := clk.LoopBandwidthMHz
	if p.BandwidthMHz > 0 {
		bw = p.BandwidthMHz
	}

	r.recorder.InsertData(summaryTable, SummaryRow{
		RunID:             r.id,
		LatencyCycles:     latency,
		LoopBandwidthMHz:  bw,
		FinalVerticalMV:   res.Waterfall.FinalVerticalMV,
		FinalHorizontalUI: res.Waterfall.FinalHorizontalUI,
		TotalPowerMW:      res.Waterfall.TotalPowerMW,
		JunctionC:         res.Waterfall.JunctionC,
		Penalties:         len(res.Waterfall.Penalties),
	})
}
