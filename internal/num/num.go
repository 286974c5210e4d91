// Package num provides the fixed-width integer arithmetic the ledger runs on.
//
// Uint is an unsigned 256-bit integer and Int a signed two's-complement
// 256-bit integer, both backed by holiman/uint256. Every operation that can
// overflow is checked and reports ErrOverflow or ErrUnderflow instead of
// wrapping. Division always floors. Values are immutable: methods return new
// values and never modify their receiver.
package num

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a result does not fit in 256 bits
	// (255 bits plus sign for Int).
	ErrOverflow = errors.New("num: arithmetic overflow")

	// ErrUnderflow is returned when an unsigned subtraction would go negative.
	ErrUnderflow = errors.New("num: arithmetic underflow")

	// ErrDivisionByZero is returned by Div and Mod with a zero divisor.
	ErrDivisionByZero = errors.New("num: division by zero")

	// ErrSyntax is returned when a decimal string cannot be parsed.
	ErrSyntax = errors.New("num: invalid decimal string")

	// ErrNegative is returned when a negative Int is converted to a Uint.
	ErrNegative = errors.New("num: negative value")
)

// Uint is an unsigned 256-bit integer with value semantics.
type Uint struct {
	v uint256.Int
}

// Zero is the zero Uint.
var Zero = Uint{}

// NewUint returns x as a Uint.
func NewUint(x uint64) Uint {
	var u Uint
	u.v.SetUint64(x)
	return u
}

// Pow2 returns 2^n. It panics when n > 255.
func Pow2(n uint) Uint {
	if n > 255 {
		panic(fmt.Sprintf("num: 2^%d does not fit in 256 bits", n))
	}
	var u Uint
	u.v.Lsh(uint256.NewInt(1), n)
	return u
}

// Pow10 returns 10^n, failing with ErrOverflow when n > 77.
func Pow10(n uint) (Uint, error) {
	if n > 77 {
		return Zero, fmt.Errorf("%w: 10^%d", ErrOverflow, n)
	}
	r := NewUint(1)
	ten := NewUint(10)
	for i := uint(0); i < n; i++ {
		r, _ = r.Mul(ten)
	}
	return r, nil
}

// ParseUint parses a base-10 string.
func ParseUint(s string) (Uint, error) {
	var u Uint
	if err := u.v.SetFromDecimal(s); err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return u, nil
}

// MustUint is ParseUint for constants and tests; it panics on error.
func MustUint(s string) Uint {
	u, err := ParseUint(s)
	if err != nil {
		panic(err)
	}
	return u
}

// FromBig converts a non-negative big.Int.
func FromBig(b *big.Int) (Uint, error) {
	if b.Sign() < 0 {
		return Zero, ErrNegative
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Zero, ErrOverflow
	}
	return Uint{v: *v}, nil
}

// Big returns the value as a new big.Int.
func (a Uint) Big() *big.Int { return a.v.ToBig() }

// Uint64 returns the value and whether it fits in 64 bits.
func (a Uint) Uint64() (uint64, bool) { return a.v.Uint64(), a.v.IsUint64() }

// Add returns a + b.
func (a Uint) Add(b Uint) (Uint, error) {
	var r Uint
	if _, overflow := r.v.AddOverflow(&a.v, &b.v); overflow {
		return Zero, ErrOverflow
	}
	return r, nil
}

// Sub returns a - b.
func (a Uint) Sub(b Uint) (Uint, error) {
	var r Uint
	if _, underflow := r.v.SubOverflow(&a.v, &b.v); underflow {
		return Zero, ErrUnderflow
	}
	return r, nil
}

// Mul returns a * b.
func (a Uint) Mul(b Uint) (Uint, error) {
	var r Uint
	if _, overflow := r.v.MulOverflow(&a.v, &b.v); overflow {
		return Zero, ErrOverflow
	}
	return r, nil
}

// Div returns floor(a / b).
func (a Uint) Div(b Uint) (Uint, error) {
	if b.v.IsZero() {
		return Zero, ErrDivisionByZero
	}
	var r Uint
	r.v.Div(&a.v, &b.v)
	return r, nil
}

// Mod returns a mod b.
func (a Uint) Mod(b Uint) (Uint, error) {
	if b.v.IsZero() {
		return Zero, ErrDivisionByZero
	}
	var r Uint
	r.v.Mod(&a.v, &b.v)
	return r, nil
}

// DivMod returns floor(a / b) and a mod b.
func (a Uint) DivMod(b Uint) (Uint, Uint, error) {
	if b.v.IsZero() {
		return Zero, Zero, ErrDivisionByZero
	}
	var q, m Uint
	q.v.DivMod(&a.v, &b.v, &m.v)
	return q, m, nil
}

// Sqrt returns floor(sqrt(a)).
func (a Uint) Sqrt() Uint {
	var r Uint
	r.v.Sqrt(&a.v)
	return r
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Uint) Cmp(b Uint) int { return a.v.Cmp(&b.v) }

func (a Uint) IsZero() bool { return a.v.IsZero() }
func (a Uint) Eq(b Uint) bool { return a.v.Eq(&b.v) }
func (a Uint) LT(b Uint) bool { return a.v.Lt(&b.v) }
func (a Uint) GT(b Uint) bool { return a.v.Gt(&b.v) }
func (a Uint) LTE(b Uint) bool { return !a.v.Gt(&b.v) }
func (a Uint) GTE(b Uint) bool { return !a.v.Lt(&b.v) }
func (a Uint) String() string { return a.v.Dec() }

// Min returns the smaller of a and b.
func (a Uint) Min(b Uint) Uint {
	if a.LT(b) {
		return a
	}
	return b
}

// MarshalText encodes the value as a base-10 string.
func (a Uint) MarshalText() ([]byte, error) { return []byte(a.v.Dec()), nil }

// UnmarshalText decodes a base-10 string.
func (a *Uint) UnmarshalText(text []byte) error {
	u, err := ParseUint(string(text))
	if err != nil {
		return err
	}
	*a = u
	return nil
}

// MarshalJSON encodes the value as a quoted base-10 string so that amounts
// beyond 2^53 survive JavaScript clients.
func (a Uint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.Dec() + `"`), nil
}

// UnmarshalJSON accepts a quoted or bare base-10 integer.
func (a *Uint) UnmarshalJSON(data []byte) error {
	return a.UnmarshalText(unquote(data))
}

func unquote(data []byte) []byte {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		return data[1 : len(data)-1]
	}
	return data
}
