package engine

import "math/big"

var bigTen = big.NewInt(10)

// feedPrecision returns the multiplier that normalises a feed answer from its
// own decimal scale up to the 18-decimal fixed-point scale.
func feedPrecision(decimals uint8) *big.Int {
	if decimals >= 18 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(bigTen, big.NewInt(int64(18-decimals)), nil)
}

// usdValue converts a token amount into its 18-decimal USD value at the given
// feed price. Multiplication happens before division so truncation occurs
// once, at the end.
func usdValue(price *big.Int, decimals uint8, amount *big.Int) *big.Int {
	scaled := new(big.Int).Mul(price, feedPrecision(decimals))
	scaled.Mul(scaled, amount)
	return scaled.Quo(scaled, precision)
}

// tokenAmountFromUsd converts an 18-decimal USD amount into the equivalent
// token quantity at the given feed price.
func tokenAmountFromUsd(usd, price *big.Int, decimals uint8) *big.Int {
	numerator := new(big.Int).Mul(usd, precision)
	denominator := new(big.Int).Mul(price, feedPrecision(decimals))
	return numerator.Quo(numerator, denominator)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
