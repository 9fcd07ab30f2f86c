package budget

import (
	"fmt"
	"math/big"
	"strings"
)

// USDC uses 6 decimal places; the smallest unit is 10^-6 USDC.
const usdcDecimals = 6

var smallestPerUsdc = big.NewInt(1_000_000)

// UsdcToSmallest converts a decimal USDC string ("0.01") to an integer
// smallest-unit string ("10000") using exact integer arithmetic. At most 6
// fractional digits are accepted; negative amounts are rejected.
func UsdcToSmallest(usdc string) (string, error) {
	s := strings.TrimSpace(usdc)
	if s == "" {
		return "", fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return "", fmt.Errorf("negative amount %q", usdc)
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot+1:]
	}
	if intPart == "" && fracPart == "" {
		return "", fmt.Errorf("invalid amount %q", usdc)
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return "", fmt.Errorf("invalid amount %q", usdc)
	}
	if len(fracPart) > usdcDecimals {
		return "", fmt.Errorf("amount %q has more than %d decimal places", usdc, usdcDecimals)
	}
	// Right-pad the fraction to exactly 6 digits so "0.01" becomes 010000.
	fracPart += strings.Repeat("0", usdcDecimals-len(fracPart))

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", usdc)
	}
	frac, ok := new(big.Int).SetString(fracPart, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", usdc)
	}

	whole.Mul(whole, smallestPerUsdc)
	whole.Add(whole, frac)
	return whole.String(), nil
}

// SmallestToUsdc converts an integer smallest-unit string to a decimal USDC
// string with at least 2 and at most 6 fractional digits: "1" -> "0.000001",
// "10000" -> "0.01", "0" -> "0.00".
func SmallestToUsdc(smallest string) (string, error) {
	value, err := ParseSmallest(smallest)
	if err != nil {
		return "", err
	}

	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(value, smallestPerUsdc, frac)

	digits := fmt.Sprintf("%06d", frac)
	// Trim trailing zeros but keep a minimum of 2 fractional digits.
	for len(digits) > 2 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
	}

	return whole.String() + "." + digits, nil
}

// ParseSmallest parses a non-negative smallest-unit integer string.
func ParseSmallest(smallest string) (*big.Int, error) {
	s := strings.TrimSpace(smallest)
	if s == "" || !isDigits(s) {
		return nil, fmt.Errorf("invalid smallest-unit amount %q", smallest)
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid smallest-unit amount %q", smallest)
	}
	return value, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
