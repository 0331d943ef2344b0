package engine

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"susd/events"
	"susd/oracle"
	"susd/state"
	"susd/storage"
	"susd/token"
)

var (
	vaultAddr      = common.HexToAddress("0x00000000000000000000000000000000000000FE")
	userAddr       = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	liquidatorAddr = common.HexToAddress("0x0000000000000000000000000000000000000A02")
	wethAddr       = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	wbtcAddr       = common.HexToAddress("0x0000000000000000000000000000000000000C02")
	debtAddr       = common.HexToAddress("0x0000000000000000000000000000000000000D01")
	strangerAddr   = common.HexToAddress("0x0000000000000000000000000000000000000BAD")
)

func amount(base int64, decimals uint) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(base), scale)
}

// fixture wires an engine against in-memory ledgers and manual feeds with
// WETH at $2000 and WBTC at $30000, both reported at 8 feed decimals. State
// writes pass through a failure-injectable wrapper, disarmed by default.
type fixture struct {
	engine   *Engine
	store    *failingState
	weth     *token.Ledger
	wbtc     *token.Ledger
	debt     *token.Ledger
	wethFeed *oracle.ManualFeed
	wbtcFeed *oracle.ManualFeed
	emitted  *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	wethFeed := oracle.NewManualFeed(8)
	wethFeed.Set(amount(2000, 8), time.Now())
	wbtcFeed := oracle.NewManualFeed(8)
	wbtcFeed.Set(amount(30000, 8), time.Now())

	weth := token.NewLedger("WETH", wethAddr)
	wbtc := token.NewLedger("WBTC", wbtcAddr)
	debt := token.NewLedger("sUSD", debtAddr)

	store := &failingState{Store: state.NewStore(storage.NewMemDB())}
	eng, err := New(Config{
		Vault:     vaultAddr,
		State:     store,
		DebtToken: debt,
		Collateral: []token.Collateral{
			token.Bind(weth, vaultAddr),
			token.Bind(wbtc, vaultAddr),
		},
		PriceFeeds: []oracle.PriceFeed{wethFeed, wbtcFeed},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	emitted := &recordingEmitter{}
	eng.SetEmitter(emitted)
	return &fixture{
		engine:   eng,
		store:    store,
		weth:     weth,
		wbtc:     wbtc,
		debt:     debt,
		wethFeed: wethFeed,
		wbtcFeed: wbtcFeed,
		emitted:  emitted,
	}
}

func (f *fixture) fundWeth(t *testing.T, owner common.Address, wei *big.Int) {
	t.Helper()
	if err := f.weth.Mint(owner, wei); err != nil {
		t.Fatalf("fund weth: %v", err)
	}
}

// openPosition deposits WETH and mints debt for the account in one step.
func (f *fixture) openPosition(t *testing.T, owner common.Address, collateral, debt *big.Int) {
	t.Helper()
	f.fundWeth(t, owner, collateral)
	if err := f.engine.DepositAndMint(owner, wethAddr, collateral, debt); err != nil {
		t.Fatalf("open position: %v", err)
	}
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) {
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) types() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType()
	}
	return out
}

func (r *recordingEmitter) reset() { r.events = nil }

var errInjected = errors.New("injected failure")

// failingCollateral wraps a collateral handle and fails selected operations.
type failingCollateral struct {
	token.Collateral
	failTransfer     bool
	failTransferFrom bool
}

func (f *failingCollateral) Transfer(to common.Address, amt *big.Int) error {
	if f.failTransfer {
		return errInjected
	}
	return f.Collateral.Transfer(to, amt)
}

func (f *failingCollateral) TransferFrom(from, to common.Address, amt *big.Int) error {
	if f.failTransferFrom {
		return errInjected
	}
	return f.Collateral.TransferFrom(from, to, amt)
}

// failingDebt wraps a debt handle and fails selected operations.
type failingDebt struct {
	token.Debt
	failMint bool
	failBurn bool
}

func (f *failingDebt) Mint(to common.Address, amt *big.Int) error {
	if f.failMint {
		return errInjected
	}
	return f.Debt.Mint(to, amt)
}

func (f *failingDebt) Burn(from common.Address, amt *big.Int) error {
	if f.failBurn {
		return errInjected
	}
	return f.Debt.Burn(from, amt)
}

// failingState wraps a position store and fails every write while armed, so
// tests can observe what a storage outage leaves behind.
type failingState struct {
	*state.Store
	failWrites bool
}

func (f *failingState) SetPosition(user, asset common.Address, collateral, debt *big.Int) error {
	if f.failWrites {
		return errInjected
	}
	return f.Store.SetPosition(user, asset, collateral, debt)
}

func (f *failingState) SetCollateralBalance(user, asset common.Address, amount *big.Int) error {
	if f.failWrites {
		return errInjected
	}
	return f.Store.SetCollateralBalance(user, asset, amount)
}

func (f *failingState) SetDebtBalance(user common.Address, amount *big.Int) error {
	if f.failWrites {
		return errInjected
	}
	return f.Store.SetDebtBalance(user, amount)
}

// reentrantCollateral calls back into the engine from inside a transfer,
// mimicking a token with attacker-controlled hooks.
type reentrantCollateral struct {
	token.Collateral
	engine  *Engine
	lastErr error
}

func (r *reentrantCollateral) TransferFrom(from, to common.Address, amt *big.Int) error {
	r.lastErr = r.engine.DepositCollateral(from, r.Address(), amt)
	return r.Collateral.TransferFrom(from, to, amt)
}
