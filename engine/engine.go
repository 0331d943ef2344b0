package engine

import (
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"susd/events"
	"susd/oracle"
	"susd/token"
)

type collateralAsset struct {
	token token.Collateral
	guard *oracle.Guard
}

// Engine orchestrates the collateral and debt ledgers, enforcing the
// health-factor invariant around every mutation. All state-changing operations
// are all-or-nothing: ledger writes are staged on local copies and persisted
// in one write only after every check and external token call has succeeded.
// A failed persist undoes the operation's token calls with their inverses.
type Engine struct {
	vault   common.Address
	state   State
	debt    token.Debt
	assets  map[common.Address]collateralAsset
	order   []common.Address
	emitter events.Emitter
	busy    atomic.Bool
}

// Config wires the engine's collaborators. Collateral and PriceFeeds are
// parallel lists; the set of accepted collateral assets is exactly this list,
// fixed for the engine's lifetime.
type Config struct {
	// Vault is the account holding deposited collateral and pulled debt
	// tokens.
	Vault common.Address
	// State is the ledger persistence layer owned by this engine instance.
	State State
	// DebtToken is the synthetic token the engine is sole minter and burner
	// of.
	DebtToken token.Debt
	// Collateral lists the accepted collateral assets.
	Collateral []token.Collateral
	// PriceFeeds lists the price source for each collateral entry.
	PriceFeeds []oracle.PriceFeed
	// OracleTimeout bounds price staleness; zero selects the oracle default.
	OracleTimeout time.Duration
}

// New constructs the engine. It fails with ErrConfigMismatch when the
// collateral and price feed lists differ in length.
func New(cfg Config) (*Engine, error) {
	if cfg.State == nil {
		return nil, errNilState
	}
	if cfg.DebtToken == nil {
		return nil, errNilDebtToken
	}
	if len(cfg.Collateral) != len(cfg.PriceFeeds) {
		return nil, ErrConfigMismatch
	}
	e := &Engine{
		vault:   cfg.Vault,
		state:   cfg.State,
		debt:    cfg.DebtToken,
		assets:  make(map[common.Address]collateralAsset, len(cfg.Collateral)),
		order:   make([]common.Address, 0, len(cfg.Collateral)),
		emitter: events.NoopEmitter{},
	}
	for i, col := range cfg.Collateral {
		if col == nil || cfg.PriceFeeds[i] == nil {
			return nil, fmt.Errorf("engine: collateral entry %d not configured", i)
		}
		addr := col.Address()
		if _, exists := e.assets[addr]; exists {
			return nil, fmt.Errorf("engine: collateral asset %s registered twice", addr.Hex())
		}
		e.assets[addr] = collateralAsset{
			token: col,
			guard: oracle.NewGuard(cfg.PriceFeeds[i], cfg.OracleTimeout),
		}
		e.order = append(e.order, addr)
	}
	return e, nil
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Vault returns the account holding deposited collateral.
func (e *Engine) Vault() common.Address { return e.vault }

// enter flags the engine as in-flight. A callback triggered by an external
// token transfer cannot re-enter a guarded operation before the first
// completes; re-entry fails fast instead of deadlocking.
func (e *Engine) enter() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) exit() { e.busy.Store(false) }

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// DepositAndMint deposits collateral and mints debt in a single atomic
// operation.
func (e *Engine) DepositAndMint(user, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !positive(collateralAmount) || !positive(debtAmount) {
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
	debt, err := e.state.DebtBalance(user)
	if err != nil {
		return err
	}
	newBalance := new(big.Int).Add(balance, collateralAmount)
	newDebt := new(big.Int).Add(debt, debtAmount)

	factor, err := e.healthFactorFor(user, newDebt, staged{asset: newBalance})
	if err != nil {
		return err
	}
	if !healthy(factor) {
		return &HealthFactorError{Factor: factor}
	}

	if err := reg.token.TransferFrom(user, e.vault, collateralAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.debt.Mint(user, debtAmount); err != nil {
		// Undo the collateral pull so a failed mint leaves no token effects.
		_ = reg.token.Transfer(user, collateralAmount)
		return fmt.Errorf("%w: %v", ErrMintFailed, err)
	}

	if err := e.state.SetPosition(user, asset, newBalance, newDebt); err != nil {
		_ = e.debt.Burn(user, debtAmount)
		_ = reg.token.Transfer(user, collateralAmount)
		return err
	}
	e.emit(CollateralDeposited{User: user, Asset: asset, Amount: cloneBigInt(collateralAmount)})
	e.emit(DebtMinted{User: user, Amount: cloneBigInt(debtAmount)})
	return nil
}

// RedeemForBurn burns debt and redeems collateral in a single atomic
// operation. The debt burn is applied first so the health check runs against
// the post-burn state, minimising spurious failures.
func (e *Engine) RedeemForBurn(user, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !positive(collateralAmount) || !positive(debtAmount) {
		return ErrInvalidAmount
	}
	reg, ok := e.assets[asset]
	if !ok {
		return ErrUnregisteredAsset
	}

	debt, err := e.state.DebtBalance(user)
	if err != nil {
		return err
	}
	if debt.Cmp(debtAmount) < 0 {
		return ErrInsufficientBalance
	}
	balance, err := e.state.CollateralBalance(user, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(collateralAmount) < 0 {
		return ErrInsufficientBalance
	}
	newDebt := new(big.Int).Sub(debt, debtAmount)
	newBalance := new(big.Int).Sub(balance, collateralAmount)

	factor, err := e.healthFactorFor(user, newDebt, staged{asset: newBalance})
	if err != nil {
		return err
	}
	if !healthy(factor) {
		return &HealthFactorError{Factor: factor}
	}

	if err := e.retireDebt(user, debtAmount); err != nil {
		return err
	}
	if err := reg.token.Transfer(user, collateralAmount); err != nil {
		// The pulled debt tokens were already destroyed; restore them.
		_ = e.debt.Mint(user, debtAmount)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := e.state.SetPosition(user, asset, newBalance, newDebt); err != nil {
		_ = reg.token.TransferFrom(user, e.vault, collateralAmount)
		_ = e.debt.Mint(user, debtAmount)
		return err
	}
	e.emit(DebtBurned{OnBehalfOf: user, Payer: user, Amount: cloneBigInt(debtAmount)})
	e.emit(CollateralRedeemed{From: user, To: user, Asset: asset, Amount: cloneBigInt(collateralAmount)})
	return nil
}

// retireDebt pulls amount of debt token from payer into the vault and destroys
// it. A failed burn restores the payer's tokens before reporting the error.
func (e *Engine) retireDebt(payer common.Address, amount *big.Int) error {
	if err := e.debt.TransferFrom(payer, e.vault, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.debt.Burn(e.vault, amount); err != nil {
		_ = e.debt.TransferFrom(e.vault, payer, amount)
		return fmt.Errorf("engine: debt token burn: %w", err)
	}
	return nil
}

// staged overrides specific collateral balances when computing a health factor
// for a mutation that has not been persisted yet.
type staged map[common.Address]*big.Int

// healthFactorFor computes the user's health factor. stagedDebt overrides the
// stored debt when non-nil, and balances present in overrides replace the
// stored collateral entries. Prices are pulled live through the staleness
// guard; a stale feed aborts with oracle.ErrStalePrice.
func (e *Engine) healthFactorFor(user common.Address, stagedDebt *big.Int, overrides staged) (*big.Int, error) {
	debt := stagedDebt
	if debt == nil {
		stored, err := e.state.DebtBalance(user)
		if err != nil {
			return nil, err
		}
		debt = stored
	}
	value, err := e.collateralValue(user, overrides)
	if err != nil {
		return nil, err
	}
	return HealthFactor(debt, value), nil
}

// collateralValue sums the USD value of every registered asset held by the
// user, recomputed fully on every call. The asset set is small and prices are
// time-sensitive, so nothing is cached.
func (e *Engine) collateralValue(user common.Address, overrides staged) (*big.Int, error) {
	total := big.NewInt(0)
	for _, addr := range e.order {
		amount, ok := overrides[addr]
		if !ok {
			stored, err := e.state.CollateralBalance(user, addr)
			if err != nil {
				return nil, err
			}
			amount = stored
		}
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		price, decimals, err := e.assets[addr].guard.FreshPrice()
		if err != nil {
			return nil, err
		}
		total.Add(total, usdValue(price, decimals, amount))
	}
	return total, nil
}

func positive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}
