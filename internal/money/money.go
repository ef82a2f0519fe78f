// Package money implements fixed-point US dollar amounts.
//
// An Amount counts nano-dollars (1e-9 USD) in an int64, which keeps
// per-token embedding rates exact and leaves room for roughly nine
// billion dollars per value.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a signed quantity of nano-dollars.
type Amount int64

const (
	Nano   Amount = 1
	Micro  Amount = 1_000
	Cent   Amount = 10_000_000
	Dollar Amount = 1_000_000_000

	fracDigits = 9
)

var ErrInvalidAmount = errors.New("money: invalid amount")

// ParseUSD parses a decimal dollar string such as "10", "10.00",
// "$0.0001" or "-1.5". More than nine fractional digits is an error
// rather than a silent rounding.
func ParseUSD(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "$")
	if raw == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	neg := false
	switch raw[0] {
	case '-':
		neg = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	whole, frac, hasDot := strings.Cut(raw, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > fracDigits {
		return 0, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, s, fracDigits)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	var dollars int64
	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil || v > int64(maxAmount/Dollar) {
			return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
		}
		dollars = v
	}

	var nanos int64
	if frac != "" {
		padded := frac + strings.Repeat("0", fracDigits-len(frac))
		v, err := strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		nanos = v
	}

	a := Amount(dollars)*Dollar + Amount(nanos)
	if neg {
		a = -a
	}
	return a, nil
}

// MustParseUSD is ParseUSD for constants and tests.
func MustParseUSD(s string) Amount {
	a, err := ParseUSD(s)
	if err != nil {
		panic(err)
	}
	return a
}

const maxAmount = Amount(1<<63 - 1)

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String renders the amount as a plain decimal with at least two and at
// most nine fractional digits, e.g. "10.00", "0.0001", "-2.50".
func (a Amount) String() string {
	neg := a < 0
	u := uint64(a)
	if neg {
		u = uint64(-a)
	}
	whole := u / uint64(Dollar)
	frac := u % uint64(Dollar)

	fs := fmt.Sprintf("%09d", frac)
	fs = strings.TrimRight(fs, "0")
	for len(fs) < 2 {
		fs += "0"
	}

	out := strconv.FormatUint(whole, 10) + "." + fs
	if neg {
		out = "-" + out
	}
	return out
}

// FromMicros converts a count of micro-dollars.
func FromMicros(micros int64) Amount { return Amount(micros) * Micro }

// Nanos returns the raw nano-dollar count.
func (a Amount) Nanos() int64 { return int64(a) }

// Float64 is for display and metrics only; never feed it back into
// ledger arithmetic.
func (a Amount) Float64() float64 { return float64(a) / float64(Dollar) }

// Mul multiplies by an integer count.
func (a Amount) Mul(n int64) Amount { return a * Amount(n) }

// MulDivCeil computes a*mul/div rounded toward positive infinity.
func (a Amount) MulDivCeil(mul, div int64) Amount {
	if div == 0 {
		panic("money: division by zero")
	}
	n := int64(a) * mul
	q := n / div
	if n%div != 0 && (n > 0) == (div > 0) {
		q++
	}
	return Amount(q)
}

// MarshalJSON encodes the amount as a decimal string so clients never see
// binary floating point.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}
	v, err := ParseUSD(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
