package backtest

import (
	"errors"

	"EdgeScan/internal/domain/models"
)

// Input errors.
var (
	ErrEmptySeries          = errors.New("empty series")
	ErrCandidateOutOfRange  = errors.New("candidate index out of range")
	ErrInvalidTradeGeometry = models.ErrInvalidTradeGeometry
	ErrMissingIndicator     = errors.New("candidate bar is missing a required indicator")
)

// Sample-insufficiency errors.
var (
	ErrInsufficientMatches = errors.New("insufficient matches")
	ErrNoClosedTrades      = errors.New("no closed trades")
)

// IsInputError reports whether err is caused by invalid input.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptySeries) ||
		errors.Is(err, ErrCandidateOutOfRange) ||
		errors.Is(err, ErrInvalidTradeGeometry) ||
		errors.Is(err, ErrMissingIndicator)
}

// IsSampleError reports whether err means the configuration produced too little data.
func IsSampleError(err error) bool {
	return errors.Is(err, ErrInsufficientMatches) || errors.Is(err, ErrNoClosedTrades)
}
