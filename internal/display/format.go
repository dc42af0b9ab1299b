// Package display formats contract amounts and addresses for presentation
package display

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MicroPerSTX is the number of micro-STX in one STX
const MicroPerSTX = 1000000

// Dev fee taken from the pot at draw time, in basis points
const (
	DevFeeBPS      = 500
	BPSDenominator = 10000
)

var (
	thousand = decimal.New(1, 3)
	million  = decimal.New(1, 6)
)

// ToSTX converts micro-STX to STX without losing precision
func ToSTX(micro *big.Int) decimal.Decimal {
	if micro == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(micro, -6)
}

// FormatSTX renders micro-STX as STX with thousands separators and between
// two and six fraction digits, e.g. 1234500000 -> "1,234.50"
func FormatSTX(micro *big.Int) string {
	s := ToSTX(micro).StringFixed(6)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i+1:]
	}
	frac = strings.TrimRight(frac, "0")
	for len(frac) < 2 {
		frac += "0"
	}
	return sign + groupThousands(intPart) + "." + frac
}

// FormatSTXShort renders micro-STX with two decimals and a K or M suffix
// for large amounts
func FormatSTXShort(micro *big.Int) string {
	stx := ToSTX(micro)
	switch {
	case stx.Cmp(million) >= 0:
		return stx.Div(million).StringFixed(2) + "M"
	case stx.Cmp(thousand) >= 0:
		return stx.Div(thousand).StringFixed(2) + "K"
	}
	return stx.StringFixed(2)
}

// FormatAddress truncates a principal to its first eight and last six
// characters; short addresses are returned as is
func FormatAddress(address string) string {
	if len(address) <= 16 {
		return address
	}
	return address[:8] + "..." + address[len(address)-6:]
}

// PrizeAfterFee is the pot minus the dev fee, rounded the way the contract
// rounds (integer division)
func PrizeAfterFee(pot *big.Int) *big.Int {
	if pot == nil {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(pot, big.NewInt(DevFeeBPS))
	fee.Quo(fee, big.NewInt(BPSDenominator))
	return fee.Sub(pot, fee)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
