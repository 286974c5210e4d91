package num

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Int is a signed 256-bit two's-complement integer in [-2^255, 2^255).
type Int struct {
	v uint256.Int
}

// maxInt is 2^255 - 1, the largest Int.
var maxInt = func() Uint {
	var u Uint
	u.v.SetAllOne()
	u.v.Rsh(&u.v, 1)
	return u
}()

// NewInt returns x as an Int.
func NewInt(x int64) Int {
	var i Int
	if x >= 0 {
		i.v.SetUint64(uint64(x))
		return i
	}
	i.v.SetUint64(uint64(-(x + 1)) + 1)
	i.v.Neg(&i.v)
	return i
}

// IntFrom converts a Uint, failing when it exceeds 2^255 - 1.
func IntFrom(u Uint) (Int, error) {
	if u.GT(maxInt) {
		return Int{}, fmt.Errorf("%w: %s exceeds int256", ErrOverflow, u)
	}
	return Int{v: u.v}, nil
}

// ParseInt parses a base-10 string with an optional leading minus sign.
func ParseInt(s string) (Int, error) {
	neg := strings.HasPrefix(s, "-")
	abs, err := ParseUint(strings.TrimPrefix(s, "-"))
	if err != nil {
		return Int{}, err
	}
	if !neg {
		return IntFrom(abs)
	}
	limit, _ := maxInt.Add(NewUint(1))
	if abs.GT(limit) {
		return Int{}, fmt.Errorf("%w: %s below int256", ErrOverflow, s)
	}
	var i Int
	i.v.Neg(&abs.v)
	return i, nil
}

// negative reports whether the sign bit is set.
func (a Int) negative() bool { return a.v[3]>>63 == 1 }

// Sign returns -1, 0 or +1.
func (a Int) Sign() int { return a.v.Sign() }

func (a Int) IsZero() bool { return a.v.IsZero() }

// Add returns a + b.
func (a Int) Add(b Int) (Int, error) {
	var r Int
	r.v.Add(&a.v, &b.v)
	// Overflow iff both operands share a sign the result does not.
	if a.negative() == b.negative() && r.negative() != a.negative() {
		return Int{}, ErrOverflow
	}
	return r, nil
}

// Sub returns a - b.
func (a Int) Sub(b Int) (Int, error) {
	var r Int
	r.v.Sub(&a.v, &b.v)
	if a.negative() != b.negative() && r.negative() != a.negative() {
		return Int{}, ErrOverflow
	}
	return r, nil
}

// Cmp compares a and b as signed values.
func (a Int) Cmp(b Int) int {
	switch {
	case a.v.Slt(&b.v):
		return -1
	case a.v.Sgt(&b.v):
		return 1
	default:
		return 0
	}
}

// Abs returns |a| as a Uint. |-2^255| fits in a Uint.
func (a Int) Abs() Uint {
	if !a.negative() {
		return Uint{v: a.v}
	}
	var u Uint
	u.v.Neg(&a.v)
	return u
}

// Uint converts a non-negative Int.
func (a Int) Uint() (Uint, error) {
	if a.negative() {
		return Zero, ErrNegative
	}
	return Uint{v: a.v}, nil
}

func (a Int) String() string {
	if a.negative() {
		return "-" + a.Abs().String()
	}
	return a.v.Dec()
}

func (a Int) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Int) UnmarshalText(text []byte) error {
	i, err := ParseInt(string(text))
	if err != nil {
		return err
	}
	*a = i
	return nil
}

func (a Int) MarshalJSON() ([]byte, error) { return []byte(`"` + a.String() + `"`), nil }

func (a *Int) UnmarshalJSON(data []byte) error { return a.UnmarshalText(unquote(data)) }
