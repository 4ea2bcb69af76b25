package phy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/phy"
	"github.com/serdeslab/linksim/touchstone"
)

func flatChannel(t *testing.T) *link.ChannelResponse {
	t.Helper()

	freq := make([]float64, 65)
	sdd21 := make([]complex128, 65)
	for i := range freq {
		freq[i] = float64(i)
		sdd21[i] = 1
	}

	ch, err := link.NewChannelResponse(freq, sdd21)
	require.NoError(t, err)

	return ch
}

func lossyChannel(t *testing.T) *link.ChannelResponse {
	t.Helper()

	ch, err := touchstone.Synthetic(6, 500).DifferentialSDD21()
	require.NoError(t, err)

	return ch
}

func smallParams() phy.Params {
	p := phy.DefaultParams()
	p.SamplesPerUI = 32
	p.FFTSize = 1 << 13
	return p
}

func TestNewModelRejectsNilChannel(t *testing.T) {
	_, err := phy.NewModel(nil, phy.DefaultParams())

	var dataErr *link.DataError
	require.ErrorAs(t, err, &dataErr)
}

func TestNewModelValidatesParams(t *testing.T) {
	ch := flatChannel(t)

	cases := []struct {
		name   string
		mutate func(*phy.Params)
	}{
		{"samples per UI", func(p *phy.Params) { p.SamplesPerUI = 1 }},
		{"fft not power of two", func(p *phy.Params) { p.FFTSize = 3000 }},
		{"fft too small", func(p *phy.Params) { p.FFTSize = 512 }},
		{"driver corner", func(p *phy.Params) { p.DriverBWFactor = 0 }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := phy.DefaultParams()
			c.mutate(&p)

			_, err := phy.NewModel(ch, p)

			var cfgErr *link.ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestSingleBitResponseIsDeterministic(t *testing.T) {
	m, err := phy.NewModel(lossyChannel(t), smallParams())
	require.NoError(t, err)

	a, err := m.SingleBitResponse(64)
	require.NoError(t, err)
	b, err := m.SingleBitResponse(64)
	require.NoError(t, err)

	// Bit-identical, not merely close.
	assert.Equal(t, a.Samples, b.Samples)
}

func TestFlatChannelPreservesPulse(t *testing.T) {
	m, err := phy.NewModel(flatChannel(t), smallParams())
	require.NoError(t, err)

	stages, err := m.StageResponses(64)
	require.NoError(t, err)

	// A transparent channel keeps most of the cursor through the driver.
	assert.Greater(t, stages.PostChannel.CursorHeight(), 0.7)
	assert.Less(t, stages.PostChannel.ISI(10), 0.3)
}

func TestCursorAmplitudeIndependentOfSamplingDensity(t *testing.T) {
	ch := flatChannel(t)

	for _, sp := range []int{16, 32, 64} {
		p := smallParams()
		p.SamplesPerUI = sp

		m, err := phy.NewModel(ch, p)
		require.NoError(t, err)

		stages, err := m.StageResponses(64)
		require.NoError(t, err)

		// A transparent channel keeps a unit cursor at every sampling
		// density; amplitude is physics, not a property of the grid.
		assert.InDelta(t, 1.0, stages.PostChannel.CursorHeight(), 0.05,
			"samples per UI %d", sp)
	}
}

func TestLossyChannelSpreadsEnergy(t *testing.T) {
	m, err := phy.NewModel(lossyChannel(t), smallParams())
	require.NoError(t, err)

	stages, err := m.StageResponses(64)
	require.NoError(t, err)

	raw := stages.PostChannel

	// Heavy loss smears the pulse: the UI-spaced ISI dominates the cursor
	// and the raw eye is closed.
	assert.Greater(t, raw.CursorHeight(), 0.0)
	assert.Greater(t, raw.ISI(20), raw.CursorHeight()/3)

	// CTLE peaking restores some of the cursor-to-ISI ratio.
	rawRatio := raw.ISI(20) / raw.CursorHeight()
	ctleRatio := stages.PostCTLE.ISI(20) / stages.PostCTLE.CursorHeight()
	assert.Less(t, ctleRatio, rawRatio)
}

func TestReflectionAddsDelayedCopy(t *testing.T) {
	p := smallParams()
	m, err := phy.NewModel(flatChannel(t), p)
	require.NoError(t, err)

	stages, err := m.StageResponses(64)
	require.NoError(t, err)

	base := stages.PostCTLE
	refl := stages.PostReflection

	// The reflected copy lands ReflectionDelayUI after the cursor.
	idx := base.CursorIndex() + p.ReflectionDelayUI*p.SamplesPerUI
	gamma := (p.RxTermZ - p.TargetZ0) / (p.RxTermZ + p.TargetZ0)

	expected := base.Samples[idx] + gamma*base.Samples[base.CursorIndex()]
	assert.InDelta(t, expected, refl.Samples[idx], 1e-9)
}

func TestStageResponsesRejectsBadBaud(t *testing.T) {
	m, err := phy.NewModel(flatChannel(t), smallParams())
	require.NoError(t, err)

	_, err = m.StageResponses(0)

	var cfgErr *link.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
