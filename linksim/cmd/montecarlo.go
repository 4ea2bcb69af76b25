package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/serdeslab/linksim/montecarlo"
)

var (
	mcIterations int
	mcSeed       uint64
	mcWorkers    int
	mcGuardband  float64
)

var monteCarloCmd = &cobra.Command{
	Use:   "montecarlo",
	Short: "Sample process variation and report the yield verdict.",
	Run: func(cmd *cobra.Command, args []string) {
		runner, err := buildRunner()
		if err != nil {
			log.Fatalf("Error building sign-off: %v", err)
		}

		params := montecarlo.DefaultParams(runner.Scenario().Clocking)
		params.Iterations = mcIterations
		params.Seed = mcSeed
		params.Workers = mcWorkers
		params.GuardbandSigma = mcGuardband

		engine, err := montecarlo.NewEngine(params, montecarlo.DefaultSigmas())
		if err != nil {
			log.Fatalf("Error building yield engine: %v", err)
		}

		report, err := engine.Run(runner)
		if err != nil {
			log.Fatalf("Error running yield analysis: %v", err)
		}

		fmt.Printf("--- Monte Carlo Yield Report (%d iterations) ---\n",
			len(report.Samples))
		fmt.Printf("Mean margin:      %8.2f mV\n", report.MeanMV)
		fmt.Printf("Sigma:            %8.2f mV\n", report.SigmaMV)
		fmt.Printf("%g-sigma worst:    %8.2f mV\n",
			params.GuardbandSigma, report.GuardbandMV)
		fmt.Printf("Yield:            %8.2f %%\n", report.YieldPercent)
		fmt.Printf("\nVERDICT: %s\n", report.Verdict())
	},
}

func init() {
	monteCarloCmd.Flags().IntVar(&mcIterations, "iterations", 500,
		"number of perturbed runs")
	monteCarloCmd.Flags().Uint64Var(&mcSeed, "seed", 1,
		"base seed of the draw sequence")
	monteCarloCmd.Flags().IntVar(&mcWorkers, "workers", 0,
		"concurrent iterations; 0 uses every logical CPU")
	monteCarloCmd.Flags().Float64Var(&mcGuardband, "guardband-sigma", 3,
		"sigma multiple the margin must keep above zero")

	rootCmd.AddCommand(monteCarloCmd)
}
