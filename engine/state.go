package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralState owns the per-user, per-asset deposit balances. Only the
// engine is permitted to invoke the mutators, and only after permission
// checks.
type CollateralState interface {
	CollateralBalance(user, asset common.Address) (*big.Int, error)
	SetCollateralBalance(user, asset common.Address, amount *big.Int) error
}

// DebtState owns the per-user minted-debt balances.
type DebtState interface {
	DebtBalance(user common.Address) (*big.Int, error)
	SetDebtBalance(user common.Address, amount *big.Int) error
}

// PositionState commits one collateral balance and the debt balance of a user
// in a single write. Operations that stage both must persist through it so a
// storage failure can never leave half of the mutation committed.
type PositionState interface {
	SetPosition(user, asset common.Address, collateral, debt *big.Int) error
}

// State is the persistence layer wired into the engine at construction. Its
// lifecycle is scoped to the engine instance; implementations must return
// defensive copies from the read methods.
type State interface {
	CollateralState
	DebtState
	PositionState
}
