package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/serdeslab/linksim/config"
	"github.com/serdeslab/linksim/signoff"
	"github.com/serdeslab/linksim/touchstone"
)

var (
	sweepMinInches  float64
	sweepMaxInches  float64
	sweepStepInches float64
	sweepPassMV     float64
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep synthetic channel lengths and report margin sensitivity.",
	Run: func(cmd *cobra.Command, args []string) {
		sc, err := config.Load(techFile, paramsFile)
		if err != nil {
			log.Fatalf("Error loading tables: %v", err)
		}

		fmt.Printf("%8s | %10s | %12s | %6s\n",
			"Length\"", "Loss dB", "Margin mV", "Status")

		for l := sweepMinInches; l <= sweepMaxInches+1e-9; l += sweepStepInches {
			ch, err := touchstone.Synthetic(l, channelPts).DifferentialSDD21()
			if err != nil {
				log.Fatalf("Error building channel: %v", err)
			}

			runner, err := signoff.MakeBuilder().
				WithScenario(sc).
				WithChannel(ch).
				Build()
			if err != nil {
				log.Fatalf("Error building sign-off: %v", err)
			}

			res, err := runner.RunNominal()
			if err != nil {
				log.Fatalf("Error at %.1f inches: %v", l, err)
			}

			status := "PASS"
			if res.Waterfall.FinalVerticalMV <= sweepPassMV {
				status = "FAIL"
			}

			fmt.Printf("%8.1f | %10.2f | %12.2f | [%s]\n",
				l, res.NyquistLossDB, res.Waterfall.FinalVerticalMV, status)
		}
	},
}

func init() {
	sweepCmd.Flags().Float64Var(&sweepMinInches, "min-inches", 3,
		"shortest channel in the sweep")
	sweepCmd.Flags().Float64Var(&sweepMaxInches, "max-inches", 9,
		"longest channel in the sweep")
	sweepCmd.Flags().Float64Var(&sweepStepInches, "step-inches", 1,
		"sweep step")
	sweepCmd.Flags().Float64Var(&sweepPassMV, "pass-mv", 15,
		"vertical margin floor for PASS")

	rootCmd.AddCommand(sweepCmd)
}
