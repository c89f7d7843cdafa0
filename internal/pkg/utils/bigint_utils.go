package utils

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of fractional digits used for balance_formatted values.
const DisplayPlaces = 6

// FormatUnits converts a raw integer amount into a fixed-point string with
// DisplayPlaces fractional digits. Example: 1500000000000000000 with 18 decimals => "1.500000".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return decimal.Zero.StringFixed(DisplayPlaces)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).StringFixed(DisplayPlaces)
}

// FormatRawUnits is FormatUnits for a decimal or 0x-prefixed hex string.
// It returns false when raw is not a valid integer.
func FormatRawUnits(raw string, decimals uint8) (string, bool) {
	amount, ok := ParseBigInt(raw)
	if !ok {
		return "", false
	}
	return FormatUnits(amount, decimals), true
}

// ParseBigInt parses a decimal or 0x-prefixed hex integer string.
func ParseBigInt(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		hex := raw[2:]
		if hex == "" {
			return big.NewInt(0), true
		}
		return new(big.Int).SetString(hex, 16)
	}
	return new(big.Int).SetString(raw, 10)
}

// UsdValue returns price * units, where units is the raw amount scaled by decimals.
func UsdValue(amount *big.Int, decimals uint8, price float64) float64 {
	if amount == nil {
		return 0
	}
	v, _ := decimal.NewFromBigInt(amount, -int32(decimals)).Mul(decimal.NewFromFloat(price)).Float64()
	return v
}

// RoundUsd rounds a USD amount to cents.
func RoundUsd(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
