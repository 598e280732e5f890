package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConfiguration    = errors.New("invalid strategy configuration")
	ErrDataInsufficient = errors.New("insufficient price data")
	ErrLookahead        = errors.New("lookahead violation")
	ErrExecution        = errors.New("malformed trade intent")
	ErrStrategy         = errors.New("strategy failed")
)

// ConfigurationError is returned before the loop starts when a StrategyConfig is unusable.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// DataInsufficientError is returned before the loop starts when a universe
// symbol's series cannot support the requested range.
type DataInsufficientError struct {
	Symbol   string
	Reason   string
	Coverage float64 // share of expected trading days present, 0 when not computed
}

func (e *DataInsufficientError) Error() string {
	if e.Coverage > 0 {
		return fmt.Sprintf("%s: %s: %s (coverage %.1f%%)", ErrDataInsufficient, e.Symbol, e.Reason, e.Coverage*100)
	}
	return fmt.Sprintf("%s: %s: %s", ErrDataInsufficient, e.Symbol, e.Reason)
}

func (e *DataInsufficientError) Is(target error) bool { return target == ErrDataInsufficient }

// LookaheadViolation means a strategy was offered or produced something dated
// after the current simulation date. Always fatal for the run.
type LookaheadViolation struct {
	Symbol  string
	Date    time.Time
	BarDate time.Time
}

func (e *LookaheadViolation) Error() string {
	return fmt.Sprintf("%s: %s saw %s on %s", ErrLookahead, e.Symbol,
		e.BarDate.Format(time.DateOnly), e.Date.Format(time.DateOnly))
}

func (e *LookaheadViolation) Is(target error) bool { return target == ErrLookahead }

// ExecutionError describes a dropped intent. It never aborts a run; it ends up
// in Result.Diagnostics.
type ExecutionError struct {
	Symbol string
	Reason string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrExecution, e.Symbol, e.Reason)
}

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// StrategyError wraps an error returned by a strategy on a given date.
type StrategyError struct {
	Date time.Time
	Err  error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("%s on %s: %v", ErrStrategy, e.Date.Format(time.DateOnly), e.Err)
}

func (e *StrategyError) Is(target error) bool { return target == ErrStrategy }

func (e *StrategyError) Unwrap() error { return e.Err }
