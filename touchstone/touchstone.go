// Package touchstone reads and writes Touchstone v1 S-parameter files and
// generates synthetic channels for tests and demos.
package touchstone

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/serdeslab/linksim/link"
)

// Network is a frequency-sampled n-port S-parameter matrix.
type Network struct {
	FreqGHz  []float64
	S        [][][]complex128 // [freq][row][col]
	NumPorts int
	Z0       float64
}

type format int

const (
	formatRI format = iota
	formatMA
	formatDB
)

// ParseFile loads a Touchstone file, deriving the port count from the
// .sNp extension.
func ParseFile(path string) (*Network, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if len(ext) < 4 || ext[0] != '.' || ext[1] != 's' || ext[len(ext)-1] != 'p' {
		return nil, &link.DataError{
			Param:  "path",
			Detail: fmt.Sprintf("not a Touchstone extension: %q", ext),
		}
	}

	ports, err := strconv.Atoi(ext[2 : len(ext)-1])
	if err != nil || ports < 1 {
		return nil, &link.DataError{
			Param:  "path",
			Detail: fmt.Sprintf("cannot derive port count from %q", ext),
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &link.DataError{Param: "path", Detail: err.Error()}
	}
	defer f.Close()

	return Parse(f, ports)
}

// Parse reads Touchstone v1 content for a known port count. Comment lines
// start with '!', the option line with '#'. Data rows may wrap across lines;
// parsing works on the token stream.
func Parse(r io.Reader, numPorts int) (*Network, error) {
	freqScale := 1.0 // to GHz
	fmtKind := formatRI
	z0 := 50.0
	sawOption := false

	var tokens []float64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '!'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			if sawOption {
				continue // Touchstone v1 honors only the first option line
			}
			sawOption = true

			var err error
			freqScale, fmtKind, z0, err = parseOptionLine(line)
			if err != nil {
				return nil, err
			}
			continue
		}

		for _, field := range strings.Fields(line) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &link.DataError{
					Param:  "touchstone",
					Detail: fmt.Sprintf("bad numeric field %q", field),
				}
			}
			tokens = append(tokens, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &link.DataError{Param: "touchstone", Detail: err.Error()}
	}

	perRecord := 1 + 2*numPorts*numPorts
	if len(tokens) == 0 || len(tokens)%perRecord != 0 {
		return nil, &link.DataError{
			Param: "touchstone",
			Detail: fmt.Sprintf(
				"token count %d is not a multiple of %d values per frequency",
				len(tokens), perRecord),
		}
	}

	numFreq := len(tokens) / perRecord
	n := &Network{
		FreqGHz:  make([]float64, numFreq),
		S:        make([][][]complex128, numFreq),
		NumPorts: numPorts,
		Z0:       z0,
	}

	for fi := 0; fi < numFreq; fi++ {
		rec := tokens[fi*perRecord : (fi+1)*perRecord]
		n.FreqGHz[fi] = rec[0] * freqScale

		m := make([][]complex128, numPorts)
		for row := 0; row < numPorts; row++ {
			m[row] = make([]complex128, numPorts)
			for col := 0; col < numPorts; col++ {
				base := 1 + 2*(row*numPorts+col)
				m[row][col] = decodePair(rec[base], rec[base+1], fmtKind)
			}
		}
		n.S[fi] = m
	}

	return n, nil
}

func parseOptionLine(line string) (freqScale float64, f format, z0 float64, err error) {
	freqScale = 1.0
	f = formatRI
	z0 = 50.0

	fields := strings.Fields(strings.ToUpper(line[1:]))
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "HZ":
			freqScale = 1e-9
		case "KHZ":
			freqScale = 1e-6
		case "MHZ":
			freqScale = 1e-3
		case "GHZ":
			freqScale = 1.0
		case "S":
			// scattering parameters, the only supported kind
		case "RI":
			f = formatRI
		case "MA":
			f = formatMA
		case "DB":
			f = formatDB
		case "R":
			if i+1 >= len(fields) {
				return 0, 0, 0, &link.DataError{
					Param:  "touchstone",
					Detail: "option line R with no impedance value",
				}
			}
			i++
			z0, err = strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return 0, 0, 0, &link.DataError{
					Param:  "touchstone",
					Detail: "bad reference impedance: " + fields[i],
				}
			}
		default:
			return 0, 0, 0, &link.DataError{
				Param:  "touchstone",
				Detail: "unsupported option token: " + fields[i],
			}
		}
	}

	return freqScale, f, z0, nil
}

func decodePair(a, b float64, f format) complex128 {
	switch f {
	case formatMA:
		return cmplx.Rect(a, b*math.Pi/180)
	case formatDB:
		return cmplx.Rect(math.Pow(10, a/20), b*math.Pi/180)
	default:
		return complex(a, b)
	}
}

// DifferentialSDD21 converts the network to its differential through
// response. Four-port networks use the mixed-mode combination for pair
// (1,2) driving pair (3,4); two-port networks pass S21 through unchanged.
func (n *Network) DifferentialSDD21() (*link.ChannelResponse, error) {
	sdd21 := make([]complex128, len(n.FreqGHz))

	switch n.NumPorts {
	case 2:
		for i, m := range n.S {
			sdd21[i] = m[1][0]
		}
	case 4:
		for i, m := range n.S {
			sdd21[i] = 0.5 * (m[2][0] - m[2][1] - m[3][0] + m[3][1])
		}
	default:
		return nil, &link.DataError{
			Param: "touchstone",
			Detail: fmt.Sprintf(
				"mixed-mode conversion needs 2 or 4 ports, got %d", n.NumPorts),
		}
	}

	return link.NewChannelResponse(n.FreqGHz, sdd21)
}

// Loss coefficients of the synthetic stripline model, per inch. Calibrated
// so a 6-inch channel shows 22.56 dB insertion loss at 32 GHz.
const (
	skinLossDBPerInch = 0.3253 // dB / sqrt(GHz)
	dielLossDBPerInch = 0.06   // dB / GHz
	delayNSPerInch    = 0.160
)

// Synthetic builds a 4-port differential channel with square-root skin loss
// and linear dielectric loss, small port reflections, and ideal isolation.
func Synthetic(lengthInches float64, points int) *Network {
	n := &Network{
		FreqGHz:  make([]float64, points),
		S:        make([][][]complex128, points),
		NumPorts: 4,
		Z0:       50,
	}

	a1 := skinLossDBPerInch * lengthInches
	a2 := dielLossDBPerInch * lengthInches

	for i := 0; i < points; i++ {
		f := 0.1 + (64.0-0.1)*float64(i)/float64(points-1)
		n.FreqGHz[i] = f

		lossDB := -(a1*math.Sqrt(f) + a2*f)
		mag := math.Pow(10, lossDB/20)
		phase := -2 * math.Pi * f * delayNSPerInch * lengthInches
		trans := cmplx.Rect(mag, phase)
		refl := complex(0.05, 0)

		m := make([][]complex128, 4)
		for r := range m {
			m[r] = make([]complex128, 4)
			m[r][r] = refl
		}
		m[0][2], m[2][0] = trans, trans
		m[1][3], m[3][1] = trans, trans
		n.S[i] = m
	}

	return n
}

// Write emits the network as Touchstone v1 in RI format with GHz units.
func (n *Network) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# GHz S RI R %g\n", n.Z0)
	fmt.Fprintf(bw, "! %d-port network, %d frequency points\n",
		n.NumPorts, len(n.FreqGHz))

	for fi, f := range n.FreqGHz {
		fmt.Fprintf(bw, "%.4f", f)
		for row := 0; row < n.NumPorts; row++ {
			for col := 0; col < n.NumPorts; col++ {
				s := n.S[fi][row][col]
				fmt.Fprintf(bw, " %.6f %.6f", real(s), imag(s))
			}
		}
		fmt.Fprintln(bw)
	}

	return bw.Flush()
}
