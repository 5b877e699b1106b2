package common

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	ETHDecimals = 18 // 1 ETH = 10^18 wei
)

// WeiToETH converts wei to ETH string without float precision loss
func WeiToETH(wei *big.Int) string {
	if wei == nil {
		return formatWithDecimals(new(big.Int), ETHDecimals)
	}
	return formatWithDecimals(wei, ETHDecimals)
}

// ETHToWei converts ETH decimal string to wei without float precision loss
func ETHToWei(eth string) (*big.Int, error) {
	return parseWithDecimals(eth, ETHDecimals)
}

// formatWithDecimals converts integer to decimal string by inserting decimal point.
// Trailing fractional zeros are trimmed, but one digit is always kept.
// Example: formatWithDecimals(1500000000000000000, 18) = "1.5"
func formatWithDecimals(value *big.Int, decimals int) string {
	s := new(big.Int).Abs(value).String()

	// Pad with leading zeros if needed
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	whole, frac := s[:pos], strings.TrimRight(s[pos:], "0")
	if frac == "" {
		frac = "0"
	}

	if value.Sign() < 0 {
		whole = "-" + whole
	}
	return whole + "." + frac
}

// parseWithDecimals converts decimal string to integer by removing decimal point.
// Negative values and more fractional digits than decimals are rejected.
// Example: parseWithDecimals("0.5", 18) = 500000000000000000
func parseWithDecimals(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty string")
	}

	whole, frac, hasPoint := strings.Cut(s, ".")
	if hasPoint && strings.Contains(frac, ".") {
		return nil, fmt.Errorf("invalid decimal format")
	}
	if whole == "" {
		whole = "0"
	}
	if hasPoint && frac == "" {
		return nil, fmt.Errorf("invalid decimal format")
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("invalid decimal format")
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("too many decimal places (max %d)", decimals)
	}

	// Pad fractional part to exact decimals
	frac += strings.Repeat("0", decimals-len(frac))

	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal format")
	}
	return n, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
