package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Collateral is the capability set an asset must satisfy to be registered as
// collateral. Any implementation matching it may back a position; the engine
// treats transfer failures as fatal to the invoking operation.
type Collateral interface {
	// Address identifies the asset.
	Address() common.Address
	// BalanceOf reports the holder's balance.
	BalanceOf(owner common.Address) *big.Int
	// Transfer moves tokens from the engine vault to the recipient.
	Transfer(to common.Address, amount *big.Int) error
	// TransferFrom moves tokens between third-party holders.
	TransferFrom(from, to common.Address, amount *big.Int) error
}

// Debt is the capability set of the synthetic debt token. The engine is the
// sole authorized minter and burner; that authorization is assigned at
// construction by handing the engine the only Debt handle and is not
// transferable.
type Debt interface {
	Address() common.Address
	BalanceOf(owner common.Address) *big.Int
	// Mint creates amount for the recipient.
	Mint(to common.Address, amount *big.Int) error
	// Burn destroys amount from the holder's balance.
	Burn(from common.Address, amount *big.Int) error
	// TransferFrom moves tokens between holders.
	TransferFrom(from, to common.Address, amount *big.Int) error
}
