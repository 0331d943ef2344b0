package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"susd/storage"
)

var positionPrefix = []byte("susd/position/")

// storedBalance is the RLP wire form of a single collateral entry. Entries are
// kept sorted by asset so records are byte-deterministic.
type storedBalance struct {
	Asset  common.Address
	Amount *big.Int
}

// storedPosition is the RLP wire form of a user's ledger entries.
type storedPosition struct {
	Collateral []storedBalance
	Debt       *big.Int
}

// Store persists per-user positions in the underlying key-value store. It
// implements the engine's State contract: reads return defensive copies and
// writers are serialised, so concurrent query traffic never observes a
// partially updated record.
type Store struct {
	mu sync.RWMutex
	db storage.Database
}

// NewStore constructs a position store bound to the provided database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func positionKey(user common.Address) []byte {
	key := make([]byte, 0, len(positionPrefix)+common.AddressLength)
	key = append(key, positionPrefix...)
	return append(key, user.Bytes()...)
}

func (s *Store) load(user common.Address) (*storedPosition, error) {
	raw, err := s.db.Get(positionKey(user))
	if errors.Is(err, storage.ErrNotFound) {
		return &storedPosition{Debt: big.NewInt(0)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load position: %w", err)
	}
	pos := new(storedPosition)
	if err := rlp.DecodeBytes(raw, pos); err != nil {
		return nil, fmt.Errorf("state: decode position: %w", err)
	}
	if pos.Debt == nil {
		pos.Debt = big.NewInt(0)
	}
	return pos, nil
}

func (s *Store) persist(user common.Address, pos *storedPosition) error {
	sort.Slice(pos.Collateral, func(i, j int) bool {
		return bytes.Compare(pos.Collateral[i].Asset.Bytes(), pos.Collateral[j].Asset.Bytes()) < 0
	})
	raw, err := rlp.EncodeToBytes(pos)
	if err != nil {
		return fmt.Errorf("state: encode position: %w", err)
	}
	return s.db.Put(positionKey(user), raw)
}

// CollateralBalance returns the user's deposited amount of the asset. Users
// are created implicitly, so an unknown user simply has a zero balance.
func (s *Store) CollateralBalance(user, asset common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, err := s.load(user)
	if err != nil {
		return nil, err
	}
	for _, entry := range pos.Collateral {
		if entry.Asset == asset {
			if entry.Amount == nil {
				return big.NewInt(0), nil
			}
			return new(big.Int).Set(entry.Amount), nil
		}
	}
	return big.NewInt(0), nil
}

// SetCollateralBalance records the user's deposited amount of the asset.
func (s *Store) SetCollateralBalance(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: collateral balance must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, err := s.load(user)
	if err != nil {
		return err
	}
	setCollateralEntry(pos, asset, amount)
	return s.persist(user, pos)
}

// SetPosition records one collateral balance together with the debt balance in
// a single committed record, so a write failure leaves both untouched.
func (s *Store) SetPosition(user, asset common.Address, collateral, debt *big.Int) error {
	if collateral == nil || collateral.Sign() < 0 {
		return fmt.Errorf("state: collateral balance must be non-negative")
	}
	if debt == nil || debt.Sign() < 0 {
		return fmt.Errorf("state: debt balance must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, err := s.load(user)
	if err != nil {
		return err
	}
	setCollateralEntry(pos, asset, collateral)
	pos.Debt = new(big.Int).Set(debt)
	return s.persist(user, pos)
}

func setCollateralEntry(pos *storedPosition, asset common.Address, amount *big.Int) {
	for i := range pos.Collateral {
		if pos.Collateral[i].Asset == asset {
			pos.Collateral[i].Amount = new(big.Int).Set(amount)
			return
		}
	}
	pos.Collateral = append(pos.Collateral, storedBalance{
		Asset:  asset,
		Amount: new(big.Int).Set(amount),
	})
}

// DebtBalance returns the user's minted-debt amount.
func (s *Store) DebtBalance(user common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, err := s.load(user)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(pos.Debt), nil
}

// SetDebtBalance records the user's minted-debt amount.
func (s *Store) SetDebtBalance(user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: debt balance must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, err := s.load(user)
	if err != nil {
		return err
	}
	pos.Debt = new(big.Int).Set(amount)
	return s.persist(user, pos)
}
