package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidInput is returned for inputs the model cannot price.
var ErrInvalidInput = errors.New("invalid pricing input")

// Class is the option type.
type Class int

const (
	Call Class = iota
	Put
)

func (c Class) String() string {
	if c == Put {
		return "PE"
	}
	return "CE"
}

// ParseClass accepts CE/PE as used in NSE symbols and call/put spelled out.
func ParseClass(s string) (Class, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CE", "CALL", "C":
		return Call, nil
	case "PE", "PUT", "P":
		return Put, nil
	}
	return Call, fmt.Errorf("%w: option type %q", ErrInvalidInput, s)
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(b []byte) error {
	v, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

const (
	DefaultRate = 0.07

	daysPerYear = 365.0
	minYears    = 0.001
)

// Years converts calendar days to the time-to-expiry used by the model.
func Years(days float64) float64 {
	return math.Max(days/daysPerYear, minYears)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func d1d2(s, k, t, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Price is the Black-Scholes value of a European option.
// t is in years; sigma is annualized.
func Price(c Class, s, k, t, r, sigma float64) float64 {
	d1, d2 := d1d2(s, k, t, r, sigma)
	df := math.Exp(-r * t)
	if c == Put {
		return k*df*normCDF(-d2) - s*normCDF(-d1)
	}
	return s*normCDF(d1) - k*df*normCDF(d2)
}

// vegaRaw is dPrice/dSigma, not scaled to vol points.
func vegaRaw(s, k, t, r, sigma float64) float64 {
	d1, _ := d1d2(s, k, t, r, sigma)
	return s * normPDF(d1) * math.Sqrt(t)
}

// bounds returns the no-arbitrage premium range for a European option.
func bounds(c Class, s, k, t, r float64) (lo, hi float64) {
	df := math.Exp(-r * t)
	if c == Put {
		return math.Max(k*df-s, 0), k * df
	}
	return math.Max(s-k*df, 0), s
}
