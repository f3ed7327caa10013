package optimization

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData matches InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInfeasibleConstraints matches InfeasibleConstraintError.
	ErrInfeasibleConstraints = errors.New("infeasible constraints")
	// ErrSolverDidNotConverge matches SolverDidNotConvergeError.
	ErrSolverDidNotConverge = errors.New("solver did not converge")
	// ErrInvalidPriceSeries is returned for unordered, duplicated or non-positive prices.
	ErrInvalidPriceSeries = errors.New("invalid price series")
)

// InsufficientDataError means too few assets or observations survived to estimate statistics.
type InsufficientDataError struct {
	Assets               int
	RequiredAssets       int
	Observations         int
	RequiredObservations int
	Reason               string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s (assets=%d, need %d; observations=%d, need %d)",
		e.Reason, e.Assets, e.RequiredAssets, e.Observations, e.RequiredObservations)
}

// Is makes errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// Violated bound kinds
const (
	BoundAsset    = "asset_bounds"
	BoundSumLower = "sum_lower"
	BoundSumUpper = "sum_upper"
	BoundShort    = "short_selling"
)

// InfeasibleConstraintError means no weight vector can satisfy the bounds.
// For per-asset violations Ticker, Lower and Upper are set; for aggregate
// violations Value is the offending sum and Limit the bound it breaks.
type InfeasibleConstraintError struct {
	Bound  string
	Ticker string
	Lower  float64
	Upper  float64
	Value  float64
	Limit  float64
}

func (e *InfeasibleConstraintError) Error() string {
	switch e.Bound {
	case BoundSumLower:
		return fmt.Sprintf("infeasible constraints: sum of lower bounds %.6f exceeds %.6f", e.Value, e.Limit)
	case BoundSumUpper:
		return fmt.Sprintf("infeasible constraints: sum of upper bounds %.6f is below %.6f", e.Value, e.Limit)
	case BoundShort:
		return fmt.Sprintf("infeasible constraints: %s has negative lower bound %.6f but short selling is not allowed", e.Ticker, e.Lower)
	default:
		return fmt.Sprintf("infeasible constraints: %s has invalid bounds lower=%.6f upper=%.6f", e.Ticker, e.Lower, e.Upper)
	}
}

// Is makes errors.Is(err, ErrInfeasibleConstraints) match.
func (e *InfeasibleConstraintError) Is(target error) bool {
	return target == ErrInfeasibleConstraints
}

// SolverDidNotConvergeError means a strategy's numerical solve failed.
// It is isolated to that strategy; other strategies still report.
type SolverDidNotConvergeError struct {
	Strategy   Strategy
	Solver     string
	Iterations int
	Restarts   int
	Status     Status
}

func (e *SolverDidNotConvergeError) Error() string {
	return fmt.Sprintf("%s: solver %s did not converge after %d iterations (restarts=%d, status=%s)",
		e.Strategy, e.Solver, e.Iterations, e.Restarts, e.Status)
}

// Is makes errors.Is(err, ErrSolverDidNotConverge) match.
func (e *SolverDidNotConvergeError) Is(target error) bool {
	return target == ErrSolverDidNotConverge
}
