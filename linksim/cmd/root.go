// Package cmd provides the command-line interface for the link sign-off
// estimator.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/serdeslab/linksim/config"
	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/signoff"
	"github.com/serdeslab/linksim/touchstone"
)

var (
	techFile     string
	paramsFile   string
	channelFile  string
	lengthInches float64
	channelPts   int
	archName     string
	recordOut    string
	recordOn     bool
	monitorOn    bool
	powerBudget  float64
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "linksim",
	Short: "Architecture-level margin sign-off for high-speed serial links.",
	Long: `linksim estimates eye margin, power, and area for a candidate ` +
		`equalizer and clocking architecture, attributes margin loss to ` +
		`pipeline stages, and samples process variation for a yield verdict.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Exit always goes through atexit so recorder buffers flush.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&techFile, "tech", "", "technology table YAML")
	pf.StringVar(&paramsFile, "params", "", "behavioral parameter table YAML")
	pf.StringVar(&channelFile, "channel", "",
		"Touchstone channel file (.s2p/.s4p); empty uses a synthetic channel")
	pf.Float64Var(&lengthInches, "length-inches", 6,
		"synthetic channel length")
	pf.IntVar(&channelPts, "points", 500,
		"synthetic channel frequency points")
	pf.StringVar(&archName, "arch", "standard",
		"CDR latency architecture: standard or speculative")
	pf.BoolVar(&recordOn, "record", false,
		"record stage margins and summaries to SQLite")
	pf.StringVar(&recordOut, "record-output", "",
		"SQLite output name; empty generates a run-scoped name")
	pf.BoolVar(&monitorOn, "monitor", false,
		"serve the monitoring API while running")
	pf.Float64Var(&powerBudget, "power-budget-mw", 0,
		"total power constraint in mW; 0 disables")
}

// loadChannel resolves the channel response from the flags: a measured
// Touchstone file when given, the synthetic stripline model otherwise.
func loadChannel() (*link.ChannelResponse, error) {
	if channelFile != "" {
		net, err := touchstone.ParseFile(channelFile)
		if err != nil {
			return nil, err
		}
		return net.DifferentialSDD21()
	}

	return touchstone.Synthetic(lengthInches, channelPts).DifferentialSDD21()
}

// buildRunner assembles a sign-off runner from the shared flags, with the
// tech and parameter tables applied when given.
func buildRunner() (*signoff.Runner, error) {
	sc, err := config.Load(techFile, paramsFile)
	if err != nil {
		return nil, err
	}

	ch, err := loadChannel()
	if err != nil {
		return nil, err
	}

	arch := link.LatencyStandard
	if archName == "speculative" {
		arch = link.LatencySpeculative
	}

	b := signoff.MakeBuilder().
		WithScenario(sc).
		WithChannel(ch).
		WithLatencyArch(arch).
		WithPowerBudgetMW(powerBudget)

	if recordOn {
		b = b.WithDataRecording(recordOut)
	}
	if monitorOn {
		b = b.WithMonitoring()
	}

	r, err := b.Build()
	if err != nil {
		return nil, err
	}

	if monitorOn {
		r.Monitor().OpenDashboard()
	}

	return r, nil
}
