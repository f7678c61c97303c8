package stats

import (
	"encoding/json"
	"fmt"
	"math"
)

// Value is a statistic that may be undefined, for example a rate with no
// trials. It is never NaN: constructing one from NaN or Inf yields Undefined.
type Value struct {
	v  float64
	ok bool
}

// Undefined is the not-computable state.
var Undefined = Value{}

// Defined wraps a finite number.
func Defined(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Value{v: v, ok: true}
}

// Get returns the number and whether it is defined.
func (x Value) Get() (float64, bool) { return x.v, x.ok }

// IsDefined reports whether the value was computable.
func (x Value) IsDefined() bool { return x.ok }

// Or returns the number, or fallback when undefined.
func (x Value) Or(fallback float64) float64 {
	if !x.ok {
		return fallback
	}
	return x.v
}

func (x Value) String() string {
	if !x.ok {
		return "n/a"
	}
	return fmt.Sprintf("%g", x.v)
}

// Percent formats the value as a percentage with the given decimals.
func (x Value) Percent(decimals int) string {
	if !x.ok {
		return "n/a"
	}
	return fmt.Sprintf("%.*f%%", decimals, x.v*100)
}

// MarshalJSON encodes undefined values as null.
func (x Value) MarshalJSON() ([]byte, error) {
	if !x.ok {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

func (x *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*x = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*x = Defined(v)
	return nil
}

// Interval is a confidence interval whose bounds may be undefined.
type Interval struct {
	Lower Value `json:"lower"`
	Upper Value `json:"upper"`
}

func (i Interval) IsDefined() bool { return i.Lower.IsDefined() && i.Upper.IsDefined() }

// ExcludesZero reports whether the whole interval lies above zero.
func (i Interval) ExcludesZero() bool {
	lo, ok := i.Lower.Get()
	return ok && i.Upper.IsDefined() && lo > 0
}

func (i Interval) Percent(decimals int) string {
	if !i.IsDefined() {
		return "n/a"
	}
	return fmt.Sprintf("[%s, %s]", i.Lower.Percent(decimals), i.Upper.Percent(decimals))
}
