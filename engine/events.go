package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeCollateralDeposited is emitted when collateral is credited to a
	// position.
	TypeCollateralDeposited = "collateral.deposited"
	// TypeCollateralRedeemed is emitted when collateral leaves a position.
	// From and To differ during liquidation.
	TypeCollateralRedeemed = "collateral.redeemed"
	// TypeDebtMinted is emitted when synthetic debt is minted against a
	// position.
	TypeDebtMinted = "debt.minted"
	// TypeDebtBurned is emitted when debt is retired. OnBehalfOf and Payer
	// differ during liquidation.
	TypeDebtBurned = "debt.burned"
	// TypePositionLiquidated is emitted when a third party liquidates an
	// unhealthy position.
	TypePositionLiquidated = "position.liquidated"
)

// CollateralDeposited records a collateral credit.
type CollateralDeposited struct {
	User   common.Address
	Asset  common.Address
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

// CollateralRedeemed records a collateral debit from From, delivered to To.
type CollateralRedeemed struct {
	From   common.Address
	To     common.Address
	Asset  common.Address
	Amount *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

// DebtMinted records newly minted debt.
type DebtMinted struct {
	User   common.Address
	Amount *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

// DebtBurned records retired debt. The debt is reduced for OnBehalfOf while
// the tokens are supplied by Payer.
type DebtBurned struct {
	OnBehalfOf common.Address
	Payer      common.Address
	Amount     *big.Int
}

func (DebtBurned) EventType() string { return TypeDebtBurned }

// PositionLiquidated summarises a completed liquidation.
type PositionLiquidated struct {
	User             common.Address
	Liquidator       common.Address
	Asset            common.Address
	DebtCovered      *big.Int
	CollateralSeized *big.Int
	StartingFactor   *big.Int
	EndingFactor     *big.Int
}

func (PositionLiquidated) EventType() string { return TypePositionLiquidated }
