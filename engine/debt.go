package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MintDebt mints amount of the synthetic token against the user's collateral.
// The mint is rejected with a HealthFactorError when the resulting position
// would fall below the minimum factor.
func (e *Engine) MintDebt(user common.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !positive(amount) {
		return ErrInvalidAmount
	}
	debt, err := e.state.DebtBalance(user)
	if err != nil {
		return err
	}
	newDebt := new(big.Int).Add(debt, amount)

	factor, err := e.healthFactorFor(user, newDebt, nil)
	if err != nil {
		return err
	}
	if !healthy(factor) {
		return &HealthFactorError{Factor: factor}
	}

	if err := e.debt.Mint(user, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMintFailed, err)
	}
	if err := e.state.SetDebtBalance(user, newDebt); err != nil {
		_ = e.debt.Burn(user, amount)
		return err
	}
	e.emit(DebtMinted{User: user, Amount: cloneBigInt(amount)})
	return nil
}

// BurnDebt retires amount of the user's debt, pulling the tokens from the
// user's own balance. Burning only improves the health factor; the closing
// check is retained as a guard against pricing changes between read and write
// within one call.
func (e *Engine) BurnDebt(user common.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !positive(amount) {
		return ErrInvalidAmount
	}
	debt, err := e.state.DebtBalance(user)
	if err != nil {
		return err
	}
	if debt.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	newDebt := new(big.Int).Sub(debt, amount)

	factor, err := e.healthFactorFor(user, newDebt, nil)
	if err != nil {
		return err
	}
	if !healthy(factor) {
		return &HealthFactorError{Factor: factor}
	}

	if err := e.retireDebt(user, amount); err != nil {
		return err
	}
	if err := e.state.SetDebtBalance(user, newDebt); err != nil {
		_ = e.debt.Mint(user, amount)
		return err
	}
	e.emit(DebtBurned{OnBehalfOf: user, Payer: user, Amount: cloneBigInt(amount)})
	return nil
}

// MintedDebt reports the user's outstanding synthetic debt.
func (e *Engine) MintedDebt(user common.Address) (*big.Int, error) {
	return e.state.DebtBalance(user)
}

// AccountHealthFactor reports the user's current health factor at live prices.
func (e *Engine) AccountHealthFactor(user common.Address) (*big.Int, error) {
	return e.healthFactorFor(user, nil, nil)
}
