package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Run one nominal sign-off and print the margin waterfall.",
	Run: func(cmd *cobra.Command, args []string) {
		runner, err := buildRunner()
		if err != nil {
			log.Fatalf("Error building sign-off: %v", err)
		}

		res, err := runner.RunNominal()
		if err != nil {
			log.Fatalf("Error running sign-off: %v", err)
		}

		wf := res.Waterfall

		fmt.Printf("Channel loss at Nyquist: %.2f dB\n\n", res.NyquistLossDB)

		fmt.Printf("%-12s | %12s | %14s | %10s\n",
			"Stage", "Vertical mV", "Horizontal UI", "Power mW")
		for _, s := range wf.Stages {
			fmt.Printf("%-12s | %12.2f | %14.3f | %10.2f\n",
				s.Stage, s.VerticalMV, s.HorizontalUI, s.PowerMW)
		}

		fmt.Printf("\nFinal margin: %.2f mV, %.3f UI at %.2f mW (Tj %.1f C)\n",
			wf.FinalVerticalMV, wf.FinalHorizontalUI,
			wf.TotalPowerMW, wf.JunctionC)
		fmt.Printf("Energy efficiency: %.3f pJ/bit\n", res.Cost.EnergyPJPerBit)

		fmt.Println("\nLoss attribution:")
		for _, a := range wf.Attribution {
			fmt.Printf("  %-12s %8.2f mV  (%5.1f%%)\n",
				a.Stage, a.LossMV, a.Percent)
		}
		fmt.Printf("  %-12s %17.1f%%\n", "unattributed", wf.UnattributedPercent)

		for _, v := range wf.Penalties {
			fmt.Printf("\nPENALTY: %s (-%.2f mV)\n", v.Error(), v.PenaltyMV())
		}

		if !res.PowerWithinBudget {
			fmt.Printf("\nPOWER: %.2f mW exceeds budget %.2f mW [FAIL]\n",
				res.Cost.TotalMW, powerBudget)
		}
	},
}

func init() {
	rootCmd.AddCommand(baselineCmd)
}
