package touchstone_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/touchstone"
)

const twoPortRI = `! simple two-port
# GHz S RI R 50
1.0  0.1 0.0  0.9 -0.1  0.9 -0.1  0.1 0.0
2.0  0.1 0.0  0.8 -0.2  0.8 -0.2  0.1 0.0
`

func TestParseTwoPortRI(t *testing.T) {
	n, err := touchstone.Parse(strings.NewReader(twoPortRI), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, n.NumPorts)
	assert.Equal(t, []float64{1, 2}, n.FreqGHz)
	assert.Equal(t, 50.0, n.Z0)
	assert.Equal(t, complex(0.9, -0.1), n.S[0][1][0])
	assert.Equal(t, complex(0.8, -0.2), n.S[1][1][0])
}

func TestParseHandlesWrappedRowsAndUnits(t *testing.T) {
	content := `# MHz S RI R 85
1000.0 0.1 0.0 0.9 -0.1
0.9 -0.1 0.1 0.0
2000.0 0.1 0.0 0.8 -0.2
0.8 -0.2 0.1 0.0
`

	n, err := touchstone.Parse(strings.NewReader(content), 2)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, n.FreqGHz[0], 1e-12)
	assert.InDelta(t, 2.0, n.FreqGHz[1], 1e-12)
	assert.Equal(t, 85.0, n.Z0)
}

func TestParseDBFormat(t *testing.T) {
	content := `# GHz S DB R 50
1.0  -40 0  -6.0206 0  -6.0206 0  -40 0
`

	n, err := touchstone.Parse(strings.NewReader(content), 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, real(n.S[0][1][0]), 1e-4)
	assert.InDelta(t, 0.01, real(n.S[0][0][0]), 1e-6)
}

func TestParseMAFormat(t *testing.T) {
	content := `# GHz S MA R 50
1.0  0.1 0  0.5 90  0.5 90  0.1 0
`

	n, err := touchstone.Parse(strings.NewReader(content), 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, real(n.S[0][1][0]), 1e-12)
	assert.InDelta(t, 0.5, imag(n.S[0][1][0]), 1e-12)
}

func TestParseRejectsBadTokenCount(t *testing.T) {
	content := `# GHz S RI R 50
1.0  0.1 0.0  0.9
`

	_, err := touchstone.Parse(strings.NewReader(content), 2)

	var dataErr *link.DataError
	require.ErrorAs(t, err, &dataErr)
}

func TestParseRejectsBadNumbers(t *testing.T) {
	content := `# GHz S RI R 50
1.0  0.1 0.0  abc 0.0  0.9 0.0  0.1 0.0
`

	_, err := touchstone.Parse(strings.NewReader(content), 2)

	var dataErr *link.DataError
	require.ErrorAs(t, err, &dataErr)
}

func TestParseFileRejectsWrongExtension(t *testing.T) {
	_, err := touchstone.ParseFile("channel.csv")

	var dataErr *link.DataError
	require.ErrorAs(t, err, &dataErr)
}

func TestDifferentialConversionFourPort(t *testing.T) {
	n := touchstone.Synthetic(6, 100)

	ch, err := n.DifferentialSDD21()
	require.NoError(t, err)

	// The synthetic network carries the full differential response on its
	// through pairs, so SDD21 equals the single-ended transmission.
	v, err := ch.At(n.FreqGHz[10], false)
	require.NoError(t, err)
	assert.InDelta(t, real(n.S[10][2][0]), real(v), 1e-12)
	assert.InDelta(t, imag(n.S[10][2][0]), imag(v), 1e-12)
}

func TestDifferentialConversionRejectsOddPortCounts(t *testing.T) {
	n := &touchstone.Network{
		FreqGHz:  []float64{1},
		S:        [][][]complex128{{{0}}},
		NumPorts: 1,
	}

	_, err := n.DifferentialSDD21()

	var dataErr *link.DataError
	require.ErrorAs(t, err, &dataErr)
}

func TestSyntheticLossCalibration(t *testing.T) {
	ch, err := touchstone.Synthetic(6, 500).DifferentialSDD21()
	require.NoError(t, err)

	// 6 inches of stripline shows 22.56 dB loss at the 32 GHz Nyquist.
	assert.InDelta(t, -22.56, ch.NyquistLossDB(64), 0.05)
}

func TestSyntheticLossScalesWithLength(t *testing.T) {
	short, err := touchstone.Synthetic(3, 500).DifferentialSDD21()
	require.NoError(t, err)
	long, err := touchstone.Synthetic(9, 500).DifferentialSDD21()
	require.NoError(t, err)

	assert.Greater(t, short.NyquistLossDB(64), long.NyquistLossDB(64))
	assert.InDelta(t, -22.56/2, short.NyquistLossDB(64), 0.1)
}

func TestWriteRoundTrip(t *testing.T) {
	orig := touchstone.Synthetic(4, 50)

	var buf bytes.Buffer
	require.NoError(t, orig.Write(&buf))

	parsed, err := touchstone.Parse(&buf, 4)
	require.NoError(t, err)

	require.Equal(t, len(orig.FreqGHz), len(parsed.FreqGHz))
	for fi := range orig.FreqGHz {
		assert.InDelta(t, orig.FreqGHz[fi], parsed.FreqGHz[fi], 1e-4)
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				assert.InDelta(t,
					real(orig.S[fi][r][c]), real(parsed.S[fi][r][c]), 1e-6)
				assert.InDelta(t,
					imag(orig.S[fi][r][c]), imag(parsed.S[fi][r][c]), 1e-6)
			}
		}
	}
}

func TestSyntheticPhaseIsLinearDelay(t *testing.T) {
	n := touchstone.Synthetic(6, 500)

	// Group delay of the through path is length times per-inch delay.
	f1, f2 := n.FreqGHz[100], n.FreqGHz[101]
	p1 := math.Atan2(imag(n.S[100][2][0]), real(n.S[100][2][0]))
	p2 := math.Atan2(imag(n.S[101][2][0]), real(n.S[101][2][0]))

	dp := p2 - p1
	for dp > math.Pi {
		dp -= 2 * math.Pi
	}
	for dp < -math.Pi {
		dp += 2 * math.Pi
	}

	delayNS := -dp / (2 * math.Pi * (f2 - f1))
	assert.InDelta(t, 0.160*6, delayNS, 1e-6)
}
