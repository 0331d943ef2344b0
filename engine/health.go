package engine

import "math/big"

var (
	// precision is the 18-decimal fixed-point scale shared by all amounts.
	precision = big.NewInt(1_000_000_000_000_000_000)
	// liquidationThreshold / liquidationPrecision is the fraction of raw
	// collateral value counted toward solvency (50%).
	liquidationThreshold = big.NewInt(50)
	liquidationPrecision = big.NewInt(100)
	// liquidationBonus / liquidationPrecision is the extra collateral share
	// awarded to a liquidator (10%).
	liquidationBonus = big.NewInt(10)
	// minHealthFactor is 1.0 in fixed point; below it an account is eligible
	// for liquidation.
	minHealthFactor = new(big.Int).Set(precision)
	// maxHealthFactor is the maximum representable ratio, reported for
	// accounts with zero debt.
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// MinimumHealthFactor returns 1.0 in the engine's fixed-point scale.
func MinimumHealthFactor() *big.Int { return new(big.Int).Set(minHealthFactor) }

// MaximumHealthFactor returns the ratio reported for debt-free accounts.
func MaximumHealthFactor() *big.Int { return new(big.Int).Set(maxHealthFactor) }

// HealthFactor converts a minted-debt amount and a total collateral value
// (both in 18-decimal fixed point USD) into the account's risk ratio. A user
// with zero debt can never be liquidated irrespective of collateral, so the
// maximum representable ratio is reported. The function is pure so callers
// can evaluate hypothetical positions without touching engine state.
func HealthFactor(mintedDebt, collateralValueUsd *big.Int) *big.Int {
	if mintedDebt == nil || mintedDebt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor)
	}
	if collateralValueUsd == nil {
		collateralValueUsd = big.NewInt(0)
	}
	adjusted := new(big.Int).Mul(collateralValueUsd, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	adjusted.Mul(adjusted, precision)
	return adjusted.Quo(adjusted, mintedDebt)
}

func healthy(factor *big.Int) bool {
	return factor != nil && factor.Cmp(minHealthFactor) >= 0
}
