package signoff

import (
	"math"
	"sync"

	"github.com/serdeslab/linksim/cdr"
	"github.com/serdeslab/linksim/cost"
	"github.com/serdeslab/linksim/datarecording"
	"github.com/serdeslab/linksim/eq"
	"github.com/serdeslab/linksim/eyescan"
	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/monitoring"
	"github.com/serdeslab/linksim/phy"
	"github.com/serdeslab/linksim/thermal"
	"github.com/serdeslab/linksim/waterfall"
)

// Result is the full output of one sign-off run.
type Result struct {
	Waterfall *link.MarginWaterfall

	Optimizer eq.Result
	Budget    cdr.PathBudget
	CDR       cdr.TrackResult
	Cost      cost.Breakdown
	Thermal   thermal.Solution
	Eye       eyescan.Metrics

	NyquistLossDB     float64
	PowerWithinBudget bool
}

// Prediction flattens the waterfall into the fifteen-scalar output contract.
func (r *Result) Prediction() link.Prediction {
	var p link.Prediction
	for _, s := range r.Waterfall.Stages {
		p.VerticalMV[s.Stage] = s.VerticalMV
		p.HorizontalUI[s.Stage] = s.HorizontalUI
	}
	p.JunctionC = r.Waterfall.JunctionC

	return p
}

// Runner executes sign-off runs against a frozen scenario. A Runner is
// stateless across runs: every Run call produces an independent result, so
// Monte Carlo iterations may call it concurrently.
type Runner struct {
	id string
	sc Scenario

	recorderMu sync.Mutex
	recorder   datarecording.Recorder

	monitor *monitoring.Monitor
}

// ID returns the unique run-session identifier.
func (r *Runner) ID() string { return r.id }

// Scenario returns a copy of the frozen scenario.
func (r *Runner) Scenario() Scenario { return r.sc }

// Monitor returns the monitoring server, or nil when monitoring is off.
func (r *Runner) Monitor() *monitoring.Monitor { return r.monitor }

// RunNominal executes the unperturbed scenario.
func (r *Runner) RunNominal() (*Result, error) {
	return r.Run(link.Perturbation{})
}

// Run executes one sign-off pass with the given perturbation applied. The
// run either completes with a full waterfall or fails atomically; partial
// ledgers are never surfaced.
func (r *Runner) Run(p link.Perturbation) (*Result, error) {
	sc := r.sc

	clk := sc.Clocking
	if p.LatencyCycles > 0 {
		clk.LatencyOverrideCycles = p.LatencyCycles
	}
	if p.BandwidthMHz > 0 {
		clk.LoopBandwidthMHz = p.BandwidthMHz
	}

	phyParams := sc.Phy
	phyParams.CTLEZeroFactor = sc.Equalizer.CTLEZeroFactor
	phyParams.CTLEPole1Factor = sc.Equalizer.CTLEPole1Factor
	phyParams.CTLEPole2Factor = sc.Equalizer.CTLEPole2Factor

	model, err := phy.NewModel(sc.Channel, phyParams)
	if err != nil {
		return nil, err
	}

	stages, err := model.StageResponses(sc.BaudGBd)
	if err != nil {
		return nil, err
	}

	opt, err := eq.Optimize(stages.PostReflection, sc.Equalizer,
		sc.OptimizerBudget, sc.OptimizerTolerance)
	if err != nil {
		return nil, err
	}
	eqCfg := opt.Config

	res := &Result{Optimizer: opt}
	res.NyquistLossDB = sc.Channel.NyquistLossDB(sc.BaudGBd)

	wb := waterfall.NewBuilder()
	vpp := sc.VppMV
	idealMV := vpp / 3

	// TX driver: the unimpaired pulse before the channel.
	txV := vpp * stages.TxPulse.CursorHeight() / 3
	cumPower := 0.0

	// Raw link: the pulse through the channel with no equalization. For a
	// lossy channel the UI-spaced ISI exceeds the eye and the conceptual
	// margin goes negative.
	rawV := verticalMV(stages.PostChannel, vpp)
	rawH := horizontalUI(stages.PostChannel)

	// TX FFE: the optimized taps applied at the driver.
	ffeSBR := eq.ApplyFFE(stages.PostChannel, eqCfg)
	ffeV := verticalMV(ffeSBR, vpp)
	ffeH := horizontalUI(ffeSBR)

	// CTLE: RX linear compensation plus the termination reflection.
	ctleSBR := eq.ApplyFFE(stages.PostReflection, eqCfg)
	ctleV := verticalMV(ctleSBR, vpp)
	ctleH := horizontalUI(ctleSBR)

	// DFE: decision feedback cancels the first post-cursors at finite
	// efficiency. Summer offset and extra channel ISI from the
	// perturbation land here.
	cursorMV := ctleSBR.CursorHeight() * vpp
	isiMV := ctleSBR.ISI(eq.ISIWindowUIs)*vpp + p.ISIExtraMV

	canceledMV := 0.0
	for k, tapMV := range eqCfg.DFETapsMV {
		postMV := math.Abs(ctleSBR.PostCursor(k+1)) * vpp
		c := tapMV
		if postMV < c {
			c = postMV
		}
		canceledMV += c * sc.DFEEfficiency
	}

	residISIMV := isiMV - canceledMV
	if residISIMV < 0 {
		residISIMV = 0
	}

	dfeV := cursorMV/3 - residISIMV - math.Abs(p.DFETapErrMV)
	if viol, bad := eqCfg.CheckDFE(); bad {
		dfeV -= viol.PenaltyMV()
		wb.Penalize(viol)
	}
	dfeH := openingUI(cursorMV/3, residISIMV)

	// CDR: acquire and track phase, then charge the residual timing
	// uncertainty against both eye axes.
	res.Budget = cdr.ClockPathBudget(sc.BaudGBd, clk.PathLengthMM, clk.DeskewLegs)

	loop, err := cdr.NewLoop(clk, sc.BaudGBd)
	if err != nil {
		return nil, err
	}

	record := cdr.TimingErrorSamples(sc.CDROffsetUI, sc.Jitter,
		sc.BaudGBd, sc.RecordUIs)
	track, err := loop.Run(record, sc.Jitter, res.Budget.RJFractionUI())
	if err != nil {
		return nil, err
	}
	res.CDR = track

	jitterTaxMV := cdr.JitterToVoltageMV(ctleSBR, vpp, track.TotalJitterUI)
	cdrV := dfeV - jitterTaxMV
	cdrH := track.HorizontalMarginUI

	// Cost and thermal close the ledger.
	res.Cost = cost.Estimate(sc.Tech, eqCfg, clk, sc.BaudGBd, phyParams.TargetZ0)
	res.PowerWithinBudget = sc.PowerBudgetMW <= 0 ||
		res.Cost.TotalMW <= sc.PowerBudgetMW

	tap1MV := 0.0
	if len(eqCfg.DFETapsMV) > 0 {
		tap1MV = eqCfg.DFETapsMV[0]
	}
	dfeAreaUM2 := float64(len(eqCfg.DFETapsMV)) * sc.Tech.DFETapAreaUM2

	res.Thermal = thermal.SolveJunction(sc.Thermal, sc.AmbientC,
		res.Cost.TotalMW, dfeAreaUM2, vpp, tap1MV, eqCfg.DFETap1LimitMV)

	thermV := cdrV - thermal.VerticalDerateMV(sc.Thermal, res.Thermal.JunctionC)

	b := res.Cost
	ledger := []struct {
		stage   link.Stage
		v, h    float64
		powerMW float64
	}{
		{link.StageTxDriver, txV, 0.5, b.TxDriverMW},
		{link.StageRawLink, rawV, rawH, 0},
		{link.StageTxFFE, ffeV, ffeH, b.FFEMW},
		{link.StageCTLE, ctleV, ctleH, b.AFEMW},
		{link.StageDFE, dfeV, dfeH, b.DFEMW},
		{link.StageCDR, cdrV, cdrH, b.PLLMW + b.CDRMW()},
		{link.StageThermal, thermV, cdrH, 0},
	}
	for _, e := range ledger {
		cumPower += e.powerMW
		if err := wb.Add(e.stage, e.v, e.h, cumPower); err != nil {
			return nil, err
		}
	}

	wb.SetJunction(res.Thermal.JunctionC)

	wf, err := wb.Build(idealMV, sc.NoiseFloorMV)
	if err != nil {
		return nil, err
	}
	res.Waterfall = wf

	if an, scanErr := eyescan.NewAnalyzer(phyParams.SamplesPerUI); scanErr == nil {
		res.Eye = an.Scan(ctleSBR, vpp, sc.EyeScanUIs)
	}

	if r.recorder != nil {
		r.record(res, p)
	}
	if r.monitor != nil {
		r.monitor.RegisterInspectable("last_result", res)
	}

	return res, nil
}

// verticalMV is the behavioral PAM4 eye height of a single-bit response: one
// third of the cursor swing minus the full UI-spaced ISI.
func verticalMV(s *link.SBR, vppMV float64) float64 {
	return vppMV * (s.CursorHeight()/3 - s.ISI(eq.ISIWindowUIs))
}

// horizontalUI estimates eye width from the ISI-to-eye ratio: a response
// whose ISI fills the eye is horizontally closed.
func horizontalUI(s *link.SBR) float64 {
	c := s.CursorHeight()
	if c <= 0 {
		return 0
	}
	return openingUI(c/3, s.ISI(eq.ISIWindowUIs))
}

func openingUI(eyeAmp, closure float64) float64 {
	if eyeAmp <= 0 {
		return 0
	}

	r := closure / eyeAmp
	if r > 1 {
		r = 1
	}

	return 0.5 * (1 - r)
}
