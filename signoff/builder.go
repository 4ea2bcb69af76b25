package signoff

import (
	"math"

	"github.com/rs/xid"

	"github.com/serdeslab/linksim/cost"
	"github.com/serdeslab/linksim/datarecording"
	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/monitoring"
	"github.com/serdeslab/linksim/phy"
	"github.com/serdeslab/linksim/thermal"
)

// declaredLossToleranceDB bounds how far the declared Nyquist loss may sit
// from the loss measured on the supplied channel before the run is rejected.
const declaredLossToleranceDB = 6.0

// Builder assembles a sign-off Runner.
type Builder struct {
	sc Scenario

	recorderOn     bool
	outputFileName string
	monitorOn      bool
}

// MakeBuilder creates a builder loaded with the default scenario.
func MakeBuilder() Builder {
	return Builder{sc: DefaultScenario()}
}

// WithScenario replaces the whole scenario.
func (b Builder) WithScenario(sc Scenario) Builder {
	b.sc = sc
	return b
}

// WithChannel sets the channel response the run is signed off against.
func (b Builder) WithChannel(ch *link.ChannelResponse) Builder {
	b.sc.Channel = ch
	return b
}

// WithBaudGBd sets the symbol rate.
func (b Builder) WithBaudGBd(baudGBd float64) Builder {
	b.sc.BaudGBd = baudGBd
	return b
}

// WithVppMV sets the transmit swing.
func (b Builder) WithVppMV(vppMV float64) Builder {
	b.sc.VppMV = vppMV
	return b
}

// WithPhyParams sets the linear path parameters.
func (b Builder) WithPhyParams(p phy.Params) Builder {
	b.sc.Phy = p
	return b
}

// WithEqualizer sets the starting equalizer configuration.
func (b Builder) WithEqualizer(cfg link.EqualizerConfig) Builder {
	b.sc.Equalizer = cfg
	return b
}

// WithClocking sets the clock distribution and CDR configuration.
func (b Builder) WithClocking(cfg link.ClockingConfig) Builder {
	b.sc.Clocking = cfg
	return b
}

// WithLatencyArch selects the CDR latency architecture.
func (b Builder) WithLatencyArch(a link.LatencyArch) Builder {
	b.sc.Clocking.Arch = a
	return b
}

// WithTech sets the technology cost table.
func (b Builder) WithTech(t cost.Tech) Builder {
	b.sc.Tech = t
	return b
}

// WithThermalParams sets the thermal model table.
func (b Builder) WithThermalParams(p thermal.Params) Builder {
	b.sc.Thermal = p
	return b
}

// WithAmbientC sets the ambient temperature.
func (b Builder) WithAmbientC(c float64) Builder {
	b.sc.AmbientC = c
	return b
}

// WithPowerBudgetMW sets the total power constraint. Zero disables it.
func (b Builder) WithPowerBudgetMW(mw float64) Builder {
	b.sc.PowerBudgetMW = mw
	return b
}

// WithArchInput applies the ten-scalar architectural input contract on top
// of the current scenario.
func (b Builder) WithArchInput(in link.ArchInput) Builder {
	taps := make([]float64, len(in.FFEPresets))
	copy(taps, in.FFEPresets[:])
	b.sc.Equalizer.FFETaps = taps

	if in.BaudGBd > 0 {
		b.sc.BaudGBd = in.BaudGBd
	}
	if in.SamplesPerUI > 0 {
		b.sc.Phy.SamplesPerUI = in.SamplesPerUI
	}
	if in.AmbientC != 0 {
		b.sc.AmbientC = in.AmbientC
	}
	if in.PowerBudgetMW > 0 {
		b.sc.PowerBudgetMW = in.PowerBudgetMW
	}
	b.sc.DeclaredNyquistLossDB = in.NyquistLossDB

	return b
}

// WithDataRecording enables SQLite recording of stage margins and run
// summaries. An empty filename generates a run-scoped name.
func (b Builder) WithDataRecording(filename string) Builder {
	b.recorderOn = true
	b.outputFileName = filename
	return b
}

// WithMonitoring serves the monitoring API while runs execute.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// Build validates the scenario and creates the Runner.
func (b Builder) Build() (*Runner, error) {
	if b.sc.Channel == nil {
		return nil, &link.DataError{
			Param:  "channel",
			Detail: "no channel response supplied",
		}
	}

	if b.sc.VppMV <= 0 {
		return nil, &link.ConfigError{
			Param: "vpp_mv", Value: b.sc.VppMV, Bound: 0,
			Why: "transmit swing must be positive",
		}
	}

	if b.sc.DeclaredNyquistLossDB != 0 {
		measured := b.sc.Channel.NyquistLossDB(b.sc.BaudGBd)
		if math.Abs(measured-b.sc.DeclaredNyquistLossDB) > declaredLossToleranceDB {
			return nil, &link.DataError{
				Param:  "nyquist_loss_db",
				Detail: "declared Nyquist loss disagrees with the supplied channel",
			}
		}
	}

	r := &Runner{
		id: xid.New().String(),
		sc: b.sc,
	}

	if b.recorderOn {
		path := b.outputFileName
		if path == "" {
			path = "linksim_signoff_" + r.id
		}
		r.recorder = datarecording.New(path)
		r.initTables()
	}

	if b.monitorOn {
		r.monitor = monitoring.NewMonitor()
		r.monitor.RegisterInspectable("scenario", r.sc)
		r.monitor.StartServer()
	}

	return r, nil
}
