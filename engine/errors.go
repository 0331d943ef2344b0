package engine

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInvalidAmount is returned when an amount parameter is zero or
	// negative where a positive amount is required.
	ErrInvalidAmount = errors.New("engine: amount must be positive")
	// ErrUnregisteredAsset is returned when the referenced collateral asset
	// was not registered at construction.
	ErrUnregisteredAsset = errors.New("engine: collateral asset not registered")
	// ErrConfigMismatch is returned at construction when the collateral and
	// price feed lists differ in length.
	ErrConfigMismatch = errors.New("engine: collateral and price feed lists must match in length")
	// ErrTransferFailed is returned when an external asset or token transfer
	// reports failure.
	ErrTransferFailed = errors.New("engine: token transfer failed")
	// ErrMintFailed is returned when the external debt token mint does not
	// confirm success.
	ErrMintFailed = errors.New("engine: debt token mint failed")
	// ErrInsufficientBalance is returned when a ledger decrement exceeds the
	// recorded balance.
	ErrInsufficientBalance = errors.New("engine: insufficient balance")
	// ErrHealthFactorOK is returned when liquidation is attempted against an
	// account whose health factor is at or above the minimum.
	ErrHealthFactorOK = errors.New("engine: health factor above minimum, account not liquidatable")
	// ErrHealthFactorNotImproved is returned when a liquidation fails to
	// strictly improve the target account's health factor.
	ErrHealthFactorNotImproved = errors.New("engine: liquidation did not improve health factor")
	// ErrHealthFactorViolation is the sentinel wrapped by HealthFactorError.
	ErrHealthFactorViolation = errors.New("engine: health factor below minimum")
	// ErrReentrantCall is returned when a mutating operation is entered while
	// another is still in flight on the same engine instance.
	ErrReentrantCall = errors.New("engine: reentrant call")

	errNilState     = errors.New("engine: state not configured")
	errNilDebtToken = errors.New("engine: debt token not configured")
)

// HealthFactorError reports a health-factor violation together with the factor
// computed for the acting account, so callers can diagnose the failure without
// re-deriving state.
type HealthFactorError struct {
	Factor *big.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("engine: health factor %s below minimum", e.Factor)
}

// Unwrap lets callers match the violation with errors.Is.
func (e *HealthFactorError) Unwrap() error { return ErrHealthFactorViolation }
