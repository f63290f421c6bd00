package brandmatch

import (
	"errors"
	"fmt"
)

var (
	// ErrDataSource reports a missing, unreadable or empty corpus source.
	ErrDataSource = errors.New("data source unavailable")
	// ErrModelUnavailable reports an embedding backend that could not be initialized.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrStrategyExecution reports a fault inside a strategy search.
	ErrStrategyExecution = errors.New("strategy execution failed")
	// ErrUnknownStrategy is returned when a strategy name is not configured.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// StrategyError attributes a failure to the strategy that raised it.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// WarningKind classifies a non-fatal problem recorded while answering a query.
type WarningKind string

const (
	WarningDataSource        WarningKind = "data_source"
	WarningModelUnavailable  WarningKind = "model_unavailable"
	WarningStrategyExecution WarningKind = "strategy_execution"
)

// Warning is a non-fatal problem surfaced alongside query results.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Strategy string      `json:"strategy,omitempty"`
	Message  string      `json:"message"`
	Err      error       `json:"-"`
}

func newWarning(strategy string, err error) Warning {
	kind := WarningStrategyExecution
	switch {
	case errors.Is(err, ErrDataSource):
		kind = WarningDataSource
	case errors.Is(err, ErrModelUnavailable):
		kind = WarningModelUnavailable
	}
	return Warning{Kind: kind, Strategy: strategy, Message: err.Error(), Err: err}
}
