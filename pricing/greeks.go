package pricing

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

const (
	seedVol   = 0.30
	tolerance = 1e-6
	maxIter   = 100
	minVega   = 1e-12

	// MinVol and MaxVol bound every volatility the solver returns.
	MinVol = 0.01
	MaxVol = 5.0
)

// Input describes one option quote to price.
type Input struct {
	Symbol       string  `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Spot         float64 `json:"spot" yaml:"spot"`
	Strike       float64 `json:"strike" yaml:"strike"`
	DaysToExpiry float64 `json:"days_to_expiry" yaml:"days_to_expiry"`
	Premium      float64 `json:"premium" yaml:"premium"`
	Class        Class   `json:"class" yaml:"class"`
	Rate         float64 `json:"rate" yaml:"rate"`
}

// Greeks is the solver output. Theta is per calendar day, Vega per vol point.
type Greeks struct {
	IV    float64 `json:"iv"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`

	// Model is the theoretical price at IV.
	Model      float64 `json:"model"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	// OutOfBounds is set when the premium lies outside the no-arbitrage
	// range and IV was pinned to MinVol without iterating.
	OutOfBounds bool `json:"out_of_bounds"`
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate reports whether the input can be priced.
func (in Input) Validate() error {
	if !finite(in.Spot, in.Strike, in.DaysToExpiry, in.Premium, in.Rate) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidInput)
	}
	switch {
	case in.Spot <= 0:
		return fmt.Errorf("%w: spot %.4f must be positive", ErrInvalidInput, in.Spot)
	case in.Strike <= 0:
		return fmt.Errorf("%w: strike %.4f must be positive", ErrInvalidInput, in.Strike)
	case in.DaysToExpiry <= 0:
		return fmt.Errorf("%w: days to expiry %.2f must be positive", ErrInvalidInput, in.DaysToExpiry)
	case in.Premium < 0:
		return fmt.Errorf("%w: premium %.4f is negative", ErrInvalidInput, in.Premium)
	case in.Rate < 0:
		return fmt.Errorf("%w: rate %.4f is negative", ErrInvalidInput, in.Rate)
	}
	return nil
}

// Solve finds the implied volatility of in.Premium by Newton-Raphson and
// returns the Greeks at that volatility. Non-convergence is not an error:
// the last estimate, clamped to [MinVol, MaxVol], is used.
func Solve(in Input) (Greeks, error) {
	if err := in.Validate(); err != nil {
		return Greeks{}, err
	}
	t := Years(in.DaysToExpiry)

	var g Greeks
	lo, hi := bounds(in.Class, in.Spot, in.Strike, t, in.Rate)
	if in.Premium <= lo || in.Premium >= hi {
		g.IV = MinVol
		g.OutOfBounds = true
	} else {
		g.IV, g.Iterations, g.Converged = impliedVol(in, t)
	}

	fill(&g, in, t)
	return g, nil
}

func impliedVol(in Input, t float64) (sigma float64, iters int, converged bool) {
	sigma = seedVol
	for iters < maxIter {
		diff := Price(in.Class, in.Spot, in.Strike, t, in.Rate, sigma) - in.Premium
		if math.Abs(diff) < tolerance {
			converged = true
			break
		}
		v := vegaRaw(in.Spot, in.Strike, t, in.Rate, sigma)
		if v < minVega || !finite(v) {
			break
		}
		iters++
		next := sigma - diff/v
		switch {
		case !finite(next) || next <= 0:
			next = sigma / 2
		case next > MaxVol:
			next = MaxVol
		}
		sigma = next
	}
	return clampVol(sigma), iters, converged
}

func clampVol(sigma float64) float64 {
	if !finite(sigma) || sigma < MinVol {
		return MinVol
	}
	return math.Min(sigma, MaxVol)
}

func fill(g *Greeks, in Input, t float64) {
	s, k, r, sigma := in.Spot, in.Strike, in.Rate, g.IV
	sqrtT := math.Sqrt(t)
	d1, d2 := d1d2(s, k, t, r, sigma)
	pdf := normPDF(d1)
	carry := r * k * math.Exp(-r*t)

	g.Gamma = pdf / (s * sigma * sqrtT)
	g.Vega = s * pdf * sqrtT / 100
	decay := -(s * pdf * sigma) / (2 * sqrtT)
	if in.Class == Put {
		g.Delta = normCDF(d1) - 1
		g.Theta = (decay + carry*normCDF(-d2)) / daysPerYear
	} else {
		g.Delta = normCDF(d1)
		g.Theta = (decay - carry*normCDF(d2)) / daysPerYear
	}
	g.Model = Price(in.Class, s, k, t, r, sigma)
}

// SolveAll prices inputs concurrently with at most workers goroutines.
// Results line up with inputs; the first invalid input aborts the batch.
func SolveAll(ctx context.Context, inputs []Input, workers int) ([]Greeks, error) {
	out := make([]Greeks, len(inputs))
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, in := range inputs {
		i, in := i, in
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			g, err := Solve(in)
			if err != nil {
				if in.Symbol != "" {
					return fmt.Errorf("price %s: %w", in.Symbol, err)
				}
				return fmt.Errorf("price input %d: %w", i, err)
			}
			out[i] = g
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
