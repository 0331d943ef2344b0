package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Liquidate lets a third party cover debtToCover of an unhealthy user's debt
// in exchange for the equivalent collateral plus a bonus. The user's health
// factor must strictly improve and the liquidator must remain solvent after
// the seizure, otherwise the whole operation fails with no effects.
func (e *Engine) Liquidate(liquidator, user, asset common.Address, debtToCover *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !positive(debtToCover) {
		return ErrInvalidAmount
	}
	reg, ok := e.assets[asset]
	if !ok {
		return ErrUnregisteredAsset
	}

	startingFactor, err := e.healthFactorFor(user, nil, nil)
	if err != nil {
		return err
	}
	if healthy(startingFactor) {
		return ErrHealthFactorOK
	}

	price, decimals, err := reg.guard.FreshPrice()
	if err != nil {
		return err
	}
	tokenAmount := tokenAmountFromUsd(debtToCover, price, decimals)
	bonus := new(big.Int).Mul(tokenAmount, liquidationBonus)
	bonus.Quo(bonus, liquidationPrecision)
	seize := new(big.Int).Add(tokenAmount, bonus)

	debt, err := e.state.DebtBalance(user)
	if err != nil {
		return err
	}
	if debt.Cmp(debtToCover) < 0 {
		return ErrInsufficientBalance
	}
	balance, err := e.state.CollateralBalance(user, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(seize) < 0 {
		return ErrInsufficientBalance
	}
	newDebt := new(big.Int).Sub(debt, debtToCover)
	newBalance := new(big.Int).Sub(balance, seize)

	endingFactor, err := e.healthFactorFor(user, newDebt, staged{asset: newBalance})
	if err != nil {
		return err
	}
	if endingFactor.Cmp(startingFactor) <= 0 {
		return ErrHealthFactorNotImproved
	}

	// The liquidator may itself have open debt against deposited collateral
	// and must remain solvent after the seizure. Their ledger entries are
	// untouched unless they liquidate themselves.
	liquidatorFactor := endingFactor
	if liquidator != user {
		liquidatorFactor, err = e.healthFactorFor(liquidator, nil, nil)
		if err != nil {
			return err
		}
	}
	if !healthy(liquidatorFactor) {
		return &HealthFactorError{Factor: liquidatorFactor}
	}

	if err := e.retireDebt(liquidator, debtToCover); err != nil {
		return err
	}
	if err := reg.token.Transfer(liquidator, seize); err != nil {
		// The liquidator's debt tokens were already destroyed; restore them.
		_ = e.debt.Mint(liquidator, debtToCover)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := e.state.SetPosition(user, asset, newBalance, newDebt); err != nil {
		_ = reg.token.TransferFrom(liquidator, e.vault, seize)
		_ = e.debt.Mint(liquidator, debtToCover)
		return err
	}
	e.emit(DebtBurned{OnBehalfOf: user, Payer: liquidator, Amount: cloneBigInt(debtToCover)})
	e.emit(CollateralRedeemed{From: user, To: liquidator, Asset: asset, Amount: cloneBigInt(seize)})
	e.emit(PositionLiquidated{
		User:             user,
		Liquidator:       liquidator,
		Asset:            asset,
		DebtCovered:      cloneBigInt(debtToCover),
		CollateralSeized: cloneBigInt(seize),
		StartingFactor:   cloneBigInt(startingFactor),
		EndingFactor:     cloneBigInt(endingFactor),
	})
	return nil
}
