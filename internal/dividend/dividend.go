package dividend

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/sfasm/internal/domain"
)

// Params configures the AR(1) dividend process.
type Params struct {
	Baseline  float64
	Min       float64
	Max       float64
	Amplitude float64 // standard deviation as a fraction of baseline
	Period    float64 // mean-reversion time constant in periods
}

// Process generates a mean-reverting dividend stream.
type Process struct {
	p     Params
	rng   domain.Rand
	rho   float64
	gauss float64
	d     float64
}

// New validates the parameters and starts the process at the baseline.
func New(p Params, rng domain.Rand) (*Process, error) {
	if p.Baseline <= 0 {
		return nil, fmt.Errorf("dividend.New: baseline must be positive, got %v", p.Baseline)
	}
	if p.Period <= 0 {
		return nil, fmt.Errorf("dividend.New: period must be positive, got %v", p.Period)
	}
	if p.Amplitude < 0 || p.Amplitude > 1 {
		return nil, fmt.Errorf("dividend.New: amplitude %v outside [0,1]", p.Amplitude)
	}
	if p.Min > p.Max {
		return nil, fmt.Errorf("dividend.New: min %v above max %v", p.Min, p.Max)
	}

	rho := math.Exp(-1.0 / p.Period)
	return &Process{
		p:     p,
		rng:   rng,
		rho:   rho,
		gauss: p.Baseline * p.Amplitude * math.Sqrt(1-rho*rho),
		d:     p.Baseline,
	}, nil
}

// Next draws the dividend for the next period.
func (pr *Process) Next() float64 {
	pr.d = pr.p.Baseline + pr.rho*(pr.d-pr.p.Baseline) + pr.gauss*pr.rng.NormFloat64()
	pr.d = min(max(pr.d, pr.p.Min), pr.p.Max)
	return pr.d
}

// Current returns the last dividend drawn (the baseline before the first draw).
func (pr *Process) Current() float64 { return pr.d }

// Rho returns the AR(1) persistence coefficient.
func (pr *Process) Rho() float64 { return pr.rho }
