// Package main provides the specfit CLI.
//
// specfit parameterizes power spectra into an aperiodic component and a set
// of Gaussian peaks.
//
// Usage:
//
//	specfit fit --input spectrum.json
//	specfit fit --input signal.json --timeseries --fs 500 --nfft 1000
//	specfit sim --freq-range 3,40 --aperiodic 1,1 --peak 10,0.3,1
//
// See --help for all available options.
package main

func main() {
	Execute()
}
