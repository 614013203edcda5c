package agent

import "github.com/alejandrodnm/sfasm/internal/bitvec"

// minVariance keeps forecast variances, and the demand divisor built
// from them, away from zero.
const minVariance = 1e-6

// Rule is one condition/forecast classifier.
//
// When Cond matches the world, the rule predicts next period's
// price+dividend as A*(price+dividend) + B*dividend + C.
type Rule struct {
	Cond *bitvec.Vector

	A, B, C float64

	Forecast  float64
	LForecast float64

	Variance    float64
	Strength    float64
	Specfactor  float64
	Specificity int
	Count       int
	LastActive  int
}

func newRule(condbits int) *Rule {
	return &Rule{Cond: bitvec.New(condbits)}
}

// ForecastFor evaluates the rule's linear forecast.
func (r *Rule) ForecastFor(price, dividend float64) float64 {
	return r.A*(price+dividend) + r.B*dividend + r.C
}

// CopyFrom makes r an exact copy of o, conditions included.
func (r *Rule) CopyFrom(o *Rule) {
	cond := r.Cond
	*r = *o
	if cond == nil || cond.Len() != o.Cond.Len() {
		cond = bitvec.New(o.Cond.Len())
	}
	cond.CopyFrom(o.Cond)
	r.Cond = cond
}

// Clone returns an independent copy.
func (r *Rule) Clone() *Rule {
	c := &Rule{}
	c.CopyFrom(r)
	return c
}

// refresh recomputes specificity, the generality bonus and strength.
func (r *Rule) refresh(p *Params) {
	r.Specificity = r.Cond.Specificity()
	r.Specfactor = float64(len(p.CondBits)-r.Specificity) * p.BitCost
	r.Strength = p.MaxDev - r.Variance + r.Specfactor
}

// setVariance stores a new variance and updates strength.
func (r *Rule) setVariance(v float64, p *Params) {
	r.Variance = max(v, minVariance)
	r.Strength = p.MaxDev - r.Variance + r.Specfactor
}
