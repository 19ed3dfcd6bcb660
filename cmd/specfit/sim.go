package main

import (
	"fmt"

	"github.com/RyanBlaney/sonido-specparam/logging"
	"github.com/RyanBlaney/sonido-specparam/specparam/sim"
	"github.com/spf13/cobra"
)

// NewSimCmd creates the sim command.
func NewSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Generate a synthetic power spectrum",
		Long: `Sim builds a power spectrum from aperiodic and peak parameters plus
Gaussian noise, and prints it as JSON that "specfit fit" accepts.

Aperiodic parameters are offset,exponent or offset,knee,exponent. Each
--peak is center,height,std; the flag may be repeated.

Examples:
  specfit sim --freq-range 3,40 --aperiodic 1,1 --peak 10,0.3,1
  specfit sim --aperiodic 1,10,2 --peak 8,0.4,1 --peak 20,0.2,2 --nlv 0.01 --seed 7`,
		RunE: runSimCmd,
	}

	cmd.Flags().Float64Slice("freq-range", []float64{3, 40}, "Frequency range, as lo,hi")
	cmd.Flags().Float64Slice("aperiodic", []float64{1, 1}, "Aperiodic parameters")
	cmd.Flags().Float64Slice("peak", nil, "Peak parameters, as center,height,std")
	cmd.Flags().Float64("freq-res", sim.DefaultFreqRes, "Frequency resolution in Hz")
	cmd.Flags().Float64("nlv", sim.DefaultNLV, "Noise level (std of log10 power)")
	cmd.Flags().Uint64("seed", 0, "Noise seed")
	cmd.Flags().StringP("output", "o", "", "Output JSON file (default stdout)")

	return cmd
}

func runSimCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	freqRange, _ := flags.GetFloat64Slice("freq-range")
	aperiodic, _ := flags.GetFloat64Slice("aperiodic")
	peaks, _ := flags.GetFloat64Slice("peak")
	freqRes, _ := flags.GetFloat64("freq-res")
	nlv, _ := flags.GetFloat64("nlv")
	seed, _ := flags.GetUint64("seed")
	outputPath, _ := flags.GetString("output")

	if len(freqRange) != 2 {
		return fmt.Errorf("--freq-range takes two values, got %d", len(freqRange))
	}

	s, err := sim.GenPowerSpectrum([2]float64{freqRange[0], freqRange[1]}, aperiodic, peaks, nlv, freqRes, seed)
	if err != nil {
		return err
	}

	logging.Debug("simulated power spectrum", logging.Fields{
		"n_freqs": len(s.Freqs),
		"n_peaks": len(peaks) / 3,
		"nlv":     nlv,
	})

	return writeJSON(cmd.OutOrStdout(), outputPath, s)
}
