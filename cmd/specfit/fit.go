package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-specparam/algorithms/spectral"
	"github.com/RyanBlaney/sonido-specparam/logging"
	"github.com/RyanBlaney/sonido-specparam/specparam"
	"github.com/RyanBlaney/sonido-specparam/specparam/config"
	"github.com/RyanBlaney/sonido-specparam/specparam/group"
	"github.com/spf13/cobra"
)

// fitInput is the accepted input layout. A single spectrum uses
// power_spectrum, a group shares freqs across power_spectra, and a time
// series (with --timeseries) uses signal and sample_rate.
type fitInput struct {
	Freqs         []float64   `json:"freqs"`
	PowerSpectrum []float64   `json:"power_spectrum"`
	PowerSpectra  [][]float64 `json:"power_spectra"`
	Signal        []float64   `json:"signal"`
	SampleRate    float64     `json:"sample_rate"`
}

// NewFitCmd creates the fit command.
func NewFitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a power spectrum",
		Long: `Fit parameterizes one power spectrum, or a group of spectra sharing a
frequency axis, and prints the results as JSON.

Power must be linear (not logged). With --timeseries the input holds a
signal, and its power spectrum is estimated first.

Examples:
  specfit fit -i spectrum.json
  specfit fit -i spectrum.json --settings specfit.yaml --freq-range 3,40
  specfit fit -i eeg.json --timeseries --fs 500 --nfft 1000
  specfit sim --peak 10,0.3,1 | specfit fit -i -`,
		RunE: runFitCmd,
	}

	cmd.Flags().StringP("input", "i", "", "Input JSON file, or - for stdin")
	cmd.Flags().StringP("output", "o", "", "Output JSON file (default stdout)")
	cmd.Flags().StringP("settings", "s", "", "YAML settings file")
	cmd.Flags().Float64Slice("freq-range", nil, "Frequency range to fit, as lo,hi")
	cmd.Flags().Bool("debug", false, "Return fit errors instead of empty results")
	cmd.Flags().Bool("spectra", false, "Include model spectra in the output")
	cmd.Flags().Int("concurrency", 4, "Spectra fitted at once for group input")
	cmd.Flags().Bool("timeseries", false, "Input is a time series; estimate its spectrum first")
	cmd.Flags().Float64("fs", 0, "Sample rate in Hz (overrides sample_rate in the input)")
	cmd.Flags().Int("nfft", 0, "Segment length for the spectrum estimate (default two seconds)")
	cmd.Flags().String("method", "welch", "Spectrum estimate: welch or periodogram")

	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runFitCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	inputPath, _ := flags.GetString("input")
	outputPath, _ := flags.GetString("output")
	withSpectra, _ := flags.GetBool("spectra")

	fitter, err := buildFitter(cmd)
	if err != nil {
		return err
	}

	var in fitInput
	if err := readJSON(cmd.InOrStdin(), inputPath, &in); err != nil {
		return err
	}

	if timeseries, _ := flags.GetBool("timeseries"); timeseries {
		if err := estimateSpectrum(cmd, &in); err != nil {
			return err
		}
	}

	freqRange, err := freqRangeFlag(cmd)
	if err != nil {
		return err
	}

	logger := logging.GetGlobalLogger()

	if len(in.PowerSpectra) > 0 {
		concurrency, _ := flags.GetInt("concurrency")
		d := group.NewParallelDispatcher(group.WithConcurrency(concurrency), group.WithLogger(logger))

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		results, err := d.Dispatch(ctx, fitter, in.Freqs, in.PowerSpectra, freqRange)
		if err != nil {
			return err
		}

		outputs := make([]fitOutput, len(results))
		for i, r := range results {
			if r.Err != nil {
				outputs[i] = failedOutput(r.Index, r.Err)
				continue
			}
			outputs[i] = newFitOutput(r.Fit, withSpectra)
			outputs[i].Index = &results[i].Index
		}
		return writeJSON(cmd.OutOrStdout(), outputPath, outputs)
	}

	if len(in.PowerSpectrum) == 0 {
		return errors.New("input has no power_spectrum, power_spectra or signal")
	}

	res, err := fitter.FitSpectrum(in.Freqs, in.PowerSpectrum, freqRange)
	if err != nil {
		return err
	}

	logger.Info("fit complete", logging.Fields{
		"has_model": res.HasModel(),
		"n_peaks":   len(res.PeakParams),
	})

	return writeJSON(cmd.OutOrStdout(), outputPath, newFitOutput(res, withSpectra))
}

func buildFitter(cmd *cobra.Command) (*specparam.Fitter, error) {
	settingsPath, _ := cmd.Flags().GetString("settings")
	debug, _ := cmd.Flags().GetBool("debug")

	file := config.DefaultFile()
	if settingsPath != "" {
		loaded, err := config.LoadFile(settingsPath)
		if err != nil {
			return nil, err
		}
		file = *loaded

		if !cmd.Flags().Changed("log-level") && file.LogLevel != "" {
			logging.SetLevel(logging.ParseLevel(file.LogLevel))
		}
	}
	if debug {
		file.Algorithm.Debug = true
	}

	return specparam.NewFitter(file.Model, file.Algorithm, specparam.WithLogger(logging.GetGlobalLogger()))
}

func freqRangeFlag(cmd *cobra.Command) (*[2]float64, error) {
	values, err := cmd.Flags().GetFloat64Slice("freq-range")
	if err != nil {
		return nil, err
	}
	switch len(values) {
	case 0:
		return nil, nil
	case 2:
		return &[2]float64{values[0], values[1]}, nil
	default:
		return nil, fmt.Errorf("--freq-range takes two values, got %d", len(values))
	}
}

func estimateSpectrum(cmd *cobra.Command, in *fitInput) error {
	flags := cmd.Flags()
	fs, _ := flags.GetFloat64("fs")
	nfft, _ := flags.GetInt("nfft")
	method, _ := flags.GetString("method")

	if fs == 0 {
		fs = in.SampleRate
	}
	if len(in.Signal) == 0 {
		return errors.New("--timeseries requires a signal in the input")
	}
	if nfft == 0 {
		nfft = 2 * int(fs)
	}

	ps := spectral.NewPowerSpectrum(fs, nfft)

	var (
		psd *spectral.PSDResult
		err error
	)
	switch method {
	case "welch":
		psd, err = ps.Welch(in.Signal)
	case "periodogram":
		psd, err = ps.Periodogram(in.Signal)
	default:
		return fmt.Errorf("unknown spectrum method %q (want welch or periodogram)", method)
	}
	if err != nil {
		return err
	}

	logging.Debug("estimated power spectrum", logging.Fields{
		"method":   method,
		"nfft":     psd.NFFT,
		"segments": psd.Segments,
		"freq_res": psd.FreqRes(),
	})

	in.Freqs = psd.Freqs
	in.PowerSpectrum = psd.Power
	in.PowerSpectra = nil
	return nil
}
