package engine

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"susd/oracle"
)

// crashPrice moves the WETH feed so previously opened positions turn
// unhealthy.
func (f *fixture) crashPrice(usd int64) {
	f.wethFeed.Set(amount(usd, 8), time.Now())
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad constant %q", s)
	}
	return v
}

func TestLiquidateRejectsHealthyAccount(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(5000, 18))

	err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(1000, 18))
	if !errors.Is(err, ErrHealthFactorOK) {
		t.Fatalf("expected ErrHealthFactorOK, got %v", err)
	}
}

func TestLiquidateValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.Liquidate(liquidatorAddr, userAddr, strangerAddr, amount(1, 18)); !errors.Is(err, ErrUnregisteredAsset) {
		t.Fatalf("expected ErrUnregisteredAsset, got %v", err)
	}
}

func TestLiquidateFullDebt(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))

	// $2000 -> $1800 drops the user's factor to 0.9.
	f.crashPrice(1800)
	f.openPosition(t, liquidatorAddr, amount(20, 18), amount(10000, 18))
	f.emitted.reset()

	if err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(10000, 18)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// 10000 / 1800 ETH of debt value plus the 10% bonus.
	seize := mustBig(t, "6111111111111111110")
	if got := f.weth.BalanceOf(liquidatorAddr); got.Cmp(seize) != 0 {
		t.Fatalf("unexpected liquidator payout %s, want %s", got, seize)
	}
	remaining, err := f.engine.CollateralBalance(userAddr, wethAddr)
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if want := new(big.Int).Sub(amount(10, 18), seize); remaining.Cmp(want) != 0 {
		t.Fatalf("unexpected remaining collateral %s, want %s", remaining, want)
	}
	debt, err := f.engine.MintedDebt(userAddr)
	if err != nil {
		t.Fatalf("minted debt: %v", err)
	}
	if debt.Sign() != 0 {
		t.Fatalf("debt not cleared, at %s", debt)
	}
	// The liquidator's own tokens were destroyed to cover the debt.
	if got := f.debt.BalanceOf(liquidatorAddr); got.Sign() != 0 {
		t.Fatalf("liquidator kept debt tokens, has %s", got)
	}
	if got := f.debt.TotalSupply(); got.Cmp(amount(10000, 18)) != 0 {
		t.Fatalf("supply not reduced, at %s", got)
	}
	factor, err := f.engine.AccountHealthFactor(userAddr)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(MaximumHealthFactor()) != 0 {
		t.Fatalf("debt-free account must report the maximum factor, got %s", factor)
	}

	want := []string{TypeDebtBurned, TypeCollateralRedeemed, TypePositionLiquidated}
	got := f.emitted.types()
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("unexpected events %v", got)
	}
	last, ok := f.emitted.events[2].(PositionLiquidated)
	if !ok {
		t.Fatalf("unexpected final event %T", f.emitted.events[2])
	}
	if last.CollateralSeized.Cmp(seize) != 0 {
		t.Fatalf("event seize %s, want %s", last.CollateralSeized, seize)
	}
	if last.EndingFactor.Cmp(last.StartingFactor) <= 0 {
		t.Fatalf("event factors not improving: %s -> %s", last.StartingFactor, last.EndingFactor)
	}
}

func TestLiquidatePartialDebt(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))
	f.crashPrice(1800)
	f.openPosition(t, liquidatorAddr, amount(20, 18), amount(5000, 18))

	starting, err := f.engine.AccountHealthFactor(userAddr)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}

	if err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(5000, 18)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	seize := mustBig(t, "3055555555555555554")
	if got := f.weth.BalanceOf(liquidatorAddr); got.Cmp(seize) != 0 {
		t.Fatalf("unexpected payout %s, want %s", got, seize)
	}
	debt, err := f.engine.MintedDebt(userAddr)
	if err != nil {
		t.Fatalf("minted debt: %v", err)
	}
	if debt.Cmp(amount(5000, 18)) != 0 {
		t.Fatalf("unexpected remaining debt %s", debt)
	}
	ending, err := f.engine.AccountHealthFactor(userAddr)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if ending.Cmp(starting) <= 0 {
		t.Fatalf("factor did not improve: %s -> %s", starting, ending)
	}
}

func TestLiquidateDebtExceedsPosition(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))
	f.crashPrice(1800)
	f.openPosition(t, liquidatorAddr, amount(40, 18), amount(12000, 18))

	err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(12000, 18))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLiquidateSeizeExceedsCollateral(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))
	// At $1000 the full debt maps to 10 ETH before the bonus, so the seize
	// cannot be satisfied.
	f.crashPrice(1000)
	f.openPosition(t, liquidatorAddr, amount(100, 18), amount(10000, 18))

	err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(10000, 18))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	debt, _ := f.engine.MintedDebt(userAddr)
	if debt.Cmp(amount(10000, 18)) != 0 {
		t.Fatalf("failed liquidation changed the ledger: %s", debt)
	}
}

func TestLiquidateMustImproveFactor(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))
	// At $1000 the collateral-to-debt ratio sits below the 110% a liquidation
	// removes, so covering debt only worsens the position.
	f.crashPrice(1000)
	f.openPosition(t, liquidatorAddr, amount(100, 18), amount(1000, 18))

	err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(1000, 18))
	if !errors.Is(err, ErrHealthFactorNotImproved) {
		t.Fatalf("expected ErrHealthFactorNotImproved, got %v", err)
	}
}

func TestLiquidateInsolventLiquidator(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))
	f.openPosition(t, liquidatorAddr, amount(10, 18), amount(10000, 18))
	// Both positions opened at $2000 fall below the minimum at $1800.
	f.crashPrice(1800)

	err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(5000, 18))
	var hfErr *HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %v", err)
	}
	debt, _ := f.engine.MintedDebt(userAddr)
	if debt.Cmp(amount(10000, 18)) != 0 {
		t.Fatalf("failed liquidation changed the ledger: %s", debt)
	}
}

func TestSelfLiquidation(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))
	f.crashPrice(1800)

	// The user's live factor is below the minimum, but the solvency check on
	// the acting account uses the post-liquidation position.
	if err := f.engine.Liquidate(userAddr, userAddr, wethAddr, amount(5000, 18)); err != nil {
		t.Fatalf("self liquidation: %v", err)
	}
	debt, err := f.engine.MintedDebt(userAddr)
	if err != nil {
		t.Fatalf("minted debt: %v", err)
	}
	if debt.Cmp(amount(5000, 18)) != 0 {
		t.Fatalf("unexpected remaining debt %s", debt)
	}
	factor, err := f.engine.AccountHealthFactor(userAddr)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if !healthy(factor) {
		t.Fatalf("self liquidation left the account unhealthy at %s", factor)
	}
	// The seized collateral lands back in the user's own wallet.
	seize := mustBig(t, "3055555555555555554")
	if got := f.weth.BalanceOf(userAddr); got.Cmp(seize) != 0 {
		t.Fatalf("unexpected wallet balance %s, want %s", got, seize)
	}
}

func TestLiquidateFailedPersistLeavesNoEffects(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))
	f.crashPrice(1800)
	f.openPosition(t, liquidatorAddr, amount(20, 18), amount(10000, 18))
	f.emitted.reset()

	f.store.failWrites = true
	err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(10000, 18))
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected storage error, got %v", err)
	}
	f.store.failWrites = false

	// The user's ledger entries are intact as one record.
	debt, err := f.engine.MintedDebt(userAddr)
	if err != nil {
		t.Fatalf("minted debt: %v", err)
	}
	if debt.Cmp(amount(10000, 18)) != 0 {
		t.Fatalf("user debt changed on failed persist: %s", debt)
	}
	balance, err := f.engine.CollateralBalance(userAddr, wethAddr)
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Cmp(amount(10, 18)) != 0 {
		t.Fatalf("user collateral changed on failed persist: %s", balance)
	}
	// The seized collateral and the burned debt tokens are both returned.
	if got := f.weth.BalanceOf(liquidatorAddr); got.Sign() != 0 {
		t.Fatalf("liquidator kept seized collateral: %s", got)
	}
	if got := f.debt.BalanceOf(liquidatorAddr); got.Cmp(amount(10000, 18)) != 0 {
		t.Fatalf("liquidator debt tokens not restored: %s", got)
	}
	if got := f.debt.TotalSupply(); got.Cmp(amount(20000, 18)) != 0 {
		t.Fatalf("supply changed on failed persist: %s", got)
	}
	if len(f.emitted.events) != 0 {
		t.Fatalf("failed operation emitted events: %v", f.emitted.types())
	}
}

func TestLiquidateStalePriceAborts(t *testing.T) {
	f := newFixture(t)
	f.openPosition(t, userAddr, amount(10, 18), amount(10000, 18))
	f.openPosition(t, liquidatorAddr, amount(20, 18), amount(5000, 18))
	f.wethFeed.Set(amount(1800, 8), time.Now().Add(-4*time.Hour))

	err := f.engine.Liquidate(liquidatorAddr, userAddr, wethAddr, amount(5000, 18))
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}
