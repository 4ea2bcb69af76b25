package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/serdeslab/linksim/touchstone"
)

var channelOut string

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Generate a synthetic stripline channel as a Touchstone file.",
	Run: func(cmd *cobra.Command, args []string) {
		net := touchstone.Synthetic(lengthInches, channelPts)

		f, err := os.Create(channelOut)
		if err != nil {
			log.Fatalf("Error creating %s: %v", channelOut, err)
		}
		defer f.Close()

		if err := net.Write(f); err != nil {
			log.Fatalf("Error writing %s: %v", channelOut, err)
		}

		ch, err := net.DifferentialSDD21()
		if err != nil {
			log.Fatalf("Error converting network: %v", err)
		}

		fmt.Printf("Wrote %s: %.1f-inch channel, %d points, %.2f dB at Nyquist\n",
			channelOut, lengthInches, channelPts, ch.NyquistLossDB(64))
	},
}

func init() {
	channelCmd.Flags().StringVar(&channelOut, "out", "channel.s4p",
		"output Touchstone file")

	rootCmd.AddCommand(channelCmd)
}
