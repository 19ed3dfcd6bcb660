package specparam

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData is returned when a fit is requested without any spectrum
	ErrNoData = errors.New("no data available to fit")

	// ErrNoModel is returned when results are queried from a failed or absent fit
	ErrNoModel = errors.New("no model fit results are available")
)

// DataError reports input that cannot be fitted as given
type DataError struct {
	Msg string
}

func (e *DataError) Error() string {
	return "data error: " + e.Msg
}

func dataErrorf(format string, args ...any) *DataError {
	return &DataError{Msg: fmt.Sprintf(format, args...)}
}

// FitStage names the solver call site that failed
type FitStage string

const (
	StageSimpleAperiodic FitStage = "simple aperiodic fit"
	StageRobustAperiodic FitStage = "robust aperiodic fit"
	StagePeakFit         FitStage = "peak fit"
)

// FitErrorKind classifies a solver failure
type FitErrorKind int

const (
	// NonConvergence: the evaluation budget ran out
	NonConvergence FitErrorKind = iota
	// Degenerate: singular or non-finite system, typically too many
	// overlapping peak guesses or an unidentifiable parameter
	Degenerate
	// Subsample: too few points survived the robust percentile selection
	Subsample
)

func (k FitErrorKind) String() string {
	switch k {
	case NonConvergence:
		return "non-convergence"
	case Degenerate:
		return "degenerate"
	case Subsample:
		return "subsample"
	default:
		return "unknown"
	}
}

// FitError reports a numerical failure at one of the solver call sites
type FitError struct {
	Stage FitStage
	Kind  FitErrorKind
	Err   error
}

func (e *FitError) Error() string {
	msg := fmt.Sprintf("model fitting failed in the %s (%s)", e.Stage, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// IsFitError reports whether err is, or wraps, a *FitError
func IsFitError(err error) bool {
	var fe *FitError
	return errors.As(err, &fe)
}

// IsDataError reports whether err is, or wraps, a *DataError
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
