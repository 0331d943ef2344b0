package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errInvalidAmount = errors.New("token: amount must be positive")
	// ErrInsufficientFunds is returned when a transfer or burn exceeds the
	// holder's balance.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
)

// Ledger is a process-local token implementation satisfying both the
// Collateral and Debt capability sets. It backs the daemon's wiring and the
// engine tests; balances are held in memory and guarded for concurrent reads.
type Ledger struct {
	mu          sync.RWMutex
	addr        common.Address
	symbol      string
	balances    map[common.Address]*big.Int
	totalSupply *big.Int
}

// NewLedger constructs an empty token ledger identified by addr.
func NewLedger(symbol string, addr common.Address) *Ledger {
	return &Ledger{
		addr:        addr,
		symbol:      symbol,
		balances:    make(map[common.Address]*big.Int),
		totalSupply: big.NewInt(0),
	}
}

// Address identifies the token.
func (l *Ledger) Address() common.Address { return l.addr }

// Symbol reports the token's display symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// TotalSupply reports the amount currently in circulation.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalSupply)
}

// BalanceOf reports the holder's balance.
func (l *Ledger) BalanceOf(owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Mint creates amount for the recipient.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, amount)
	l.totalSupply = new(big.Int).Add(l.totalSupply, amount)
	return nil
}

// Burn destroys amount from the holder's balance.
func (l *Ledger) Burn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.totalSupply = new(big.Int).Sub(l.totalSupply, amount)
	return nil
}

// TransferFrom moves amount between holders.
func (l *Ledger) TransferFrom(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(owner common.Address, amount *big.Int) {
	bal, ok := l.balances[owner]
	if !ok {
		bal = big.NewInt(0)
	}
	l.balances[owner] = new(big.Int).Add(bal, amount)
}

func (l *Ledger) debit(owner common.Address, amount *big.Int) error {
	bal, ok := l.balances[owner]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, l.symbol)
	}
	l.balances[owner] = new(big.Int).Sub(bal, amount)
	return nil
}

// Bound wraps a Ledger with a fixed vault identity so that Transfer debits the
// vault, mirroring a token held by a specific account. A Ledger on its own has
// no ambient caller identity and therefore satisfies only the Debt capability
// set; Bound completes the Collateral set.
type Bound struct {
	*Ledger
	vault common.Address
}

// Bind returns a handle whose Transfer operations originate from vault.
func Bind(ledger *Ledger, vault common.Address) *Bound {
	return &Bound{Ledger: ledger, vault: vault}
}

// Transfer moves amount from the bound vault to the recipient.
func (b *Bound) Transfer(to common.Address, amount *big.Int) error {
	return b.Ledger.TransferFrom(b.vault, to, amount)
}
