package cdr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serdeslab/linksim/cdr"
	"github.com/serdeslab/linksim/link"
)

func standardClocking() link.ClockingConfig {
	return link.ClockingConfig{
		PathLengthMM:     1.0,
		LoopBandwidthMHz: 20,
		Arch:             link.LatencyStandard,
		PIResolution:     64,
		DeskewLegs:       4,
	}
}

func baselineProfile() cdr.JitterProfile {
	return cdr.JitterProfile{FreqMHz: 5, AmplitudeUI: 0.03}
}

// baselineRJ is the 1 mm clock path's random jitter in UI at 64 GBd.
func baselineRJ() float64 {
	return cdr.ClockPathBudget(64, 1.0, 4).RJFractionUI()
}

func runLoop(t *testing.T, clk link.ClockingConfig) cdr.TrackResult {
	t.Helper()

	loop, err := cdr.NewLoop(clk, 64)
	require.NoError(t, err)

	record := cdr.TimingErrorSamples(0.35, baselineProfile(), 64, 2048)
	res, err := loop.Run(record, baselineProfile(), baselineRJ())
	require.NoError(t, err)

	return res
}

func TestNewLoopValidation(t *testing.T) {
	var cfgErr *link.ConfigError

	clk := standardClocking()
	_, err := cdr.NewLoop(clk, 0)
	require.ErrorAs(t, err, &cfgErr)

	clk = standardClocking()
	clk.LoopBandwidthMHz = 0
	_, err = cdr.NewLoop(clk, 64)
	require.ErrorAs(t, err, &cfgErr)

	// Beyond 1% of the symbol rate the discrete loop is unstable.
	clk = standardClocking()
	clk.LoopBandwidthMHz = 1000
	_, err = cdr.NewLoop(clk, 64)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "cdr_loop_bw_mhz", cfgErr.Param)

	clk = standardClocking()
	clk.PIResolution = 1
	_, err = cdr.NewLoop(clk, 64)
	require.ErrorAs(t, err, &cfgErr)
}

func TestVotePipelineDelaysCorrection(t *testing.T) {
	clk := standardClocking()
	loop, err := cdr.NewLoop(clk, 64)
	require.NoError(t, err)

	// The first vote surfaces only after the pipeline drains.
	for i := 0; i < 12; i++ {
		assert.Equal(t, 0.0, loop.Step(0.3))
	}
	assert.Greater(t, loop.Step(0.3), 0.0)
}

func TestLoopAcquiresAndTracks(t *testing.T) {
	res := runLoop(t, standardClocking())

	assert.Equal(t, cdr.StateTrack, res.State)
	assert.Greater(t, res.AcquireUIs, 0)
	assert.Less(t, res.AcquireUIs, 2048)

	// The interpolator settles near the 0.35 UI static offset.
	assert.InDelta(t, 0.35, res.PhaseUI, 0.25)
}

func TestLoopFailsWhenRecordEndsBeforeLock(t *testing.T) {
	loop, err := cdr.NewLoop(standardClocking(), 64)
	require.NoError(t, err)

	record := cdr.TimingErrorSamples(0.45, baselineProfile(), 64, 12)
	_, err = loop.Run(record, baselineProfile(), baselineRJ())

	var cfgErr *link.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoopRejectsEmptyRecord(t *testing.T) {
	loop, err := cdr.NewLoop(standardClocking(), 64)
	require.NoError(t, err)

	_, err = loop.Run(nil, baselineProfile(), baselineRJ())

	var dataErr *link.DataError
	require.ErrorAs(t, err, &dataErr)
}

func TestStandardArchHorizontalMargin(t *testing.T) {
	res := runLoop(t, standardClocking())

	// Twelve cycles of vote latency leave roughly 0.279 UI.
	assert.InDelta(t, 0.279, res.HorizontalMarginUI, 0.001)
}

func TestSpeculativeArchHorizontalMargin(t *testing.T) {
	clk := standardClocking()
	clk.Arch = link.LatencySpeculative

	res := runLoop(t, clk)

	assert.Greater(t, res.HorizontalMarginUI, 0.450)
}

func TestLatencyArchOnlyChangesMargin(t *testing.T) {
	std := runLoop(t, standardClocking())

	spec := standardClocking()
	spec.Arch = link.LatencySpeculative
	unrolled := runLoop(t, spec)

	assert.Greater(t, unrolled.HorizontalMarginUI, std.HorizontalMarginUI)

	// Jitter terms are architecture independent; only the hunting term
	// moves.
	assert.InDelta(t, std.TotalJitterUI, unrolled.TotalJitterUI, 1e-12)
}

func TestJitterTransferGainRollsOff(t *testing.T) {
	// In-band jitter is tracked out, out-of-band jitter passes through.
	assert.InDelta(t, 1.0, cdr.JitterTransferGain(0.1, 20), 1e-4)
	assert.InDelta(t, 0.5, cdr.JitterTransferGain(20, 20), 1e-12)
	assert.Less(t, cdr.JitterTransferGain(200, 20), 0.01)
}

func TestResidualSJShrinksWithBandwidth(t *testing.T) {
	narrow := standardClocking()
	narrow.LoopBandwidthMHz = 10
	wide := standardClocking()
	wide.LoopBandwidthMHz = 40

	resNarrow := runLoop(t, narrow)
	resWide := runLoop(t, wide)

	assert.Greater(t, resNarrow.ResidualSJUI, resWide.ResidualSJUI)
}

func TestTimingErrorSamplesDeterministic(t *testing.T) {
	a := cdr.TimingErrorSamples(0.35, baselineProfile(), 64, 256)
	b := cdr.TimingErrorSamples(0.35, baselineProfile(), 64, 256)

	assert.Equal(t, a, b)
	assert.InDelta(t, 0.35, a[0], 1e-12)
}

func TestJitterToVoltageScalesWithSlope(t *testing.T) {
	sp := 32
	samples := make([]float64, 8*sp)
	for i := 0; i <= 4*sp; i++ {
		samples[i] = float64(i) / float64(4*sp)
	}
	sbr := &link.SBR{Samples: samples, SamplesPerUI: sp, UISeconds: 15.625e-12}

	small := cdr.JitterToVoltageMV(sbr, 420, 0.01)
	large := cdr.JitterToVoltageMV(sbr, 420, 0.02)

	assert.Greater(t, small, 0.0)
	assert.InDelta(t, 2*small, large, 1e-9)
}
