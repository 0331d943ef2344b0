package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"susd/oracle"
)

// DepositCollateral credits the user's position with amount of the registered
// asset and pulls the tokens into the vault. A failed transfer leaves the
// ledger untouched.
func (e *Engine) DepositCollateral(user, asset common.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !positive(amount) {
		return ErrInvalidAmount
	}
	reg, ok := e.assets[asset]
	if !ok {
		return ErrUnregisteredAsset
	}
	balance, err := e.state.CollateralBalance(user, asset)
	if err != nil {
		return err
	}
	if err := reg.token.TransferFrom(user, e.vault, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.SetCollateralBalance(user, asset, new(big.Int).Add(balance, amount)); err != nil {
		_ = reg.token.Transfer(user, amount)
		return err
	}
	e.emit(CollateralDeposited{User: user, Asset: asset, Amount: cloneBigInt(amount)})
	return nil
}

// RedeemCollateral releases amount of the asset back to the user, provided the
// position stays healthy afterwards.
func (e *Engine) RedeemCollateral(user, asset common.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !positive(amount) {
		return ErrInvalidAmount
	}
	reg, ok := e.assets[asset]
	if !ok {
		return ErrUnregisteredAsset
	}
	balance, err := e.state.CollateralBalance(user, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	newBalance := new(big.Int).Sub(balance, amount)

	factor, err := e.healthFactorFor(user, nil, staged{asset: newBalance})
	if err != nil {
		return err
	}
	if !healthy(factor) {
		return &HealthFactorError{Factor: factor}
	}

	if err := reg.token.Transfer(user, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.SetCollateralBalance(user, asset, newBalance); err != nil {
		_ = reg.token.TransferFrom(user, e.vault, amount)
		return err
	}
	e.emit(CollateralRedeemed{From: user, To: user, Asset: asset, Amount: cloneBigInt(amount)})
	return nil
}

// CollateralBalance reports the user's deposited amount of the asset.
func (e *Engine) CollateralBalance(user, asset common.Address) (*big.Int, error) {
	if _, ok := e.assets[asset]; !ok {
		return nil, ErrUnregisteredAsset
	}
	return e.state.CollateralBalance(user, asset)
}

// TotalCollateralValue reports the USD value of the user's deposits across
// every registered asset at live prices.
func (e *Engine) TotalCollateralValue(user common.Address) (*big.Int, error) {
	return e.collateralValue(user, nil)
}

// CollateralAssets lists the registered collateral assets in registration
// order.
func (e *Engine) CollateralAssets() []common.Address {
	return append([]common.Address(nil), e.order...)
}

// FeedFor returns the price source registered for the asset.
func (e *Engine) FeedFor(asset common.Address) (oracle.PriceFeed, error) {
	reg, ok := e.assets[asset]
	if !ok {
		return nil, ErrUnregisteredAsset
	}
	return reg.guard.Feed(), nil
}

// TokenAmountFromUsd converts an 18-decimal USD amount into the equivalent
// quantity of the asset at the live price.
func (e *Engine) TokenAmountFromUsd(asset common.Address, usd *big.Int) (*big.Int, error) {
	reg, ok := e.assets[asset]
	if !ok {
		return nil, ErrUnregisteredAsset
	}
	price, decimals, err := reg.guard.FreshPrice()
	if err != nil {
		return nil, err
	}
	return tokenAmountFromUsd(usd, price, decimals), nil
}

// UsdValue converts an asset amount into its 18-decimal USD value at the live
// price.
func (e *Engine) UsdValue(asset common.Address, amount *big.Int) (*big.Int, error) {
	reg, ok := e.assets[asset]
	if !ok {
		return nil, ErrUnregisteredAsset
	}
	price, decimals, err := reg.guard.FreshPrice()
	if err != nil {
		return nil, err
	}
	return usdValue(price, decimals, amount), nil
}
