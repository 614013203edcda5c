package agent

import (
	"math"
	"sort"

	"github.com/alejandrodnm/sfasm/internal/bitvec"
)

// maxParentDraws bounds the redraws of a second crossover parent that
// is distinct from the first.
const maxParentDraws = 10

// performGA runs one genetic-algorithm cycle over the rule population.
// Rule 0 may be a parent but is never replaced, crossed over or
// mutated; it only receives the population's weighted-average
// coefficients.
func (a *Agent) performGA(t int) {
	a.gaCount++
	a.lastGATime = t

	reject := a.makePool()

	var avStrength, avVariance float64
	var sumW, sumA, sumB, sumC float64
	for _, r := range a.rules {
		avStrength += r.Strength
		avVariance += r.Variance
		if r.Count > 0 && r.Variance > 0 {
			w := 1 / r.Variance
			sumW += w
			sumA += w * r.A
			sumB += w * r.B
			sumC += w * r.C
		}
	}
	n := float64(len(a.rules))
	avStrength /= n
	avVariance /= n

	if sumW > 0 {
		r0 := a.rules[0]
		r0.A = sumA / sumW
		r0.B = sumB / sumW
		r0.C = sumC / sumW
	}

	children := make([]*Rule, a.nnew)
	for i := range children {
		children[i] = a.breed(t, avVariance)
	}

	a.transfer(children, reject)
	a.generalize(t, avStrength)
	a.updateAvgSpecificity()
}

// makePool returns the indices of the npool weakest rules, weakest first.
func (a *Agent) makePool() []int {
	idx := make([]int, 0, len(a.rules)-1)
	for i := 1; i < len(a.rules); i++ {
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(x, y int) bool {
		return a.rules[idx[x]].Strength < a.rules[idx[y]].Strength
	})
	return idx[:a.npool]
}

// breed builds one new rule from tournament-selected parents. A child
// that differs from its parent starts with no experience and the
// population's average variance; an unchanged child is an exact copy.
func (a *Agent) breed(t int, avVariance float64) *Rule {
	p1 := a.tournament()
	child := p1.Clone()

	var changed bool
	if a.rng.Float64() < a.p.PCrossover {
		p2 := a.tournament()
		for try := 0; p2 == p1 && try < maxParentDraws; try++ {
			p2 = a.tournament()
		}
		a.crossover(child, p1, p2)
		changed = true
	} else {
		changed = a.mutate(child)
	}

	if changed {
		child.Count = 0
		child.LastActive = t
		child.Forecast = 0
		child.LForecast = 0
		child.Variance = max(avVariance, minVariance)
		child.refresh(&a.p)
	}
	return child
}

func (a *Agent) tournament() *Rule {
	r1 := a.rules[a.rng.IntN(len(a.rules))]
	r2 := a.rules[a.rng.IntN(len(a.rules))]
	if r1.Strength > r2.Strength {
		return r1
	}
	return r2
}

// crossover takes each condition bit from a random parent and combines
// the coefficients linearly by inverse variance, per coefficient at
// random, or wholesale from one parent.
func (a *Agent) crossover(child, p1, p2 *Rule) {
	for bit := 0; bit < child.Cond.Len(); bit++ {
		if a.rng.Float64() < 0.5 {
			child.Cond.Set(bit, p1.Cond.Get(bit))
		} else {
			child.Cond.Set(bit, p2.Cond.Get(bit))
		}
	}

	u := a.rng.Float64()
	switch {
	case u < a.p.PLinear:
		w1 := 1 / max(p1.Variance, minVariance)
		w2 := 1 / max(p2.Variance, minVariance)
		f := w1 / (w1 + w2)
		child.A = f*p1.A + (1-f)*p2.A
		child.B = f*p1.B + (1-f)*p2.B
		child.C = f*p1.C + (1-f)*p2.C
	case u < a.p.PLinear+a.p.PRandom:
		child.A = a.pick(p1.A, p2.A)
		child.B = a.pick(p1.B, p2.B)
		child.C = a.pick(p1.C, p2.C)
	default:
		src := p1
		if a.rng.Float64() < 0.5 {
			src = p2
		}
		child.A, child.B, child.C = src.A, src.B, src.C
	}
}

func (a *Agent) pick(x, y float64) float64 {
	if a.rng.Float64() < 0.5 {
		return x
	}
	return y
}

// mutate perturbs conditions and coefficients in place and reports
// whether anything changed. A specified bit is masked two times in
// three and flipped otherwise; a don't-care bit becomes specified two
// times in three, which keeps expected specificity roughly stable.
func (a *Agent) mutate(r *Rule) bool {
	changed := false

	if a.p.PMutation > 0 {
		for bit := 0; bit < r.Cond.Len(); bit++ {
			if a.rng.Float64() >= a.p.PMutation {
				continue
			}
			if r.Cond.Get(bit) == bitvec.DontCare {
				if a.rng.IntN(3) > 0 && r.Cond.SetFromZero(bit, bitvec.Trit(a.rng.IntN(2)+1)) {
					changed = true
				}
				continue
			}
			if a.rng.IntN(3) > 0 {
				r.Cond.Mask(bit)
			} else {
				r.Cond.Toggle(bit)
			}
			changed = true
		}
	}

	var moved bool
	if r.A, moved = a.jump(r.A, a.p.AMin, a.p.AMax); moved {
		changed = true
	}
	if r.B, moved = a.jump(r.B, a.p.BMin, a.p.BMax); moved {
		changed = true
	}
	if r.C, moved = a.jump(r.C, a.p.CMin, a.p.CMax); moved {
		changed = true
	}
	return changed
}

// jump applies a long jump (fresh uniform draw over the range) or a
// short one (local step within nhood of the range) to a coefficient.
func (a *Agent) jump(v, lo, hi float64) (float64, bool) {
	span := hi - lo
	if span == 0 {
		return v, false
	}
	u := a.rng.Float64()
	switch {
	case u < a.p.PLong:
		return lo + a.rng.Float64()*span, true
	case u < a.p.PLong+a.p.PShort:
		v += (2*a.rng.Float64() - 1) * span * a.p.NHood
		return min(max(v, lo), hi), true
	}
	return v, false
}

// transfer writes each child over a rule from the reject pool.
func (a *Agent) transfer(children []*Rule, reject []int) {
	claimed := make([]bool, len(reject))
	for _, child := range children {
		slot := a.getMort(child, reject, claimed)
		a.rules[slot].CopyFrom(child)
	}
}

// getMort picks two unclaimed rejects at random and returns the one
// whose conditions are closer to the incoming rule, so that new rules
// displace look-alikes.
func (a *Agent) getMort(child *Rule, reject []int, claimed []bool) int {
	free := make([]int, 0, len(reject))
	for i, c := range claimed {
		if !c {
			free = append(free, i)
		}
	}

	choice := free[0]
	if len(free) > 1 {
		i1 := a.rng.IntN(len(free))
		i2 := a.rng.IntN(len(free) - 1)
		if i2 >= i1 {
			i2++
		}
		r1, r2 := free[i1], free[i2]
		d1 := child.Cond.Distance(a.rules[reject[r1]].Cond)
		d2 := child.Cond.Distance(a.rules[reject[r2]].Cond)
		choice = r2
		if d1 < d2 {
			choice = r1
		}
	}

	claimed[choice] = true
	return reject[choice]
}

// generalize masks part of the conditions of every rule that has not
// matched for longtime periods and restarts its statistics near the
// population average.
func (a *Agent) generalize(t int, avStrength float64) {
	specified := make([]int, 0, len(a.p.CondBits))
	for _, r := range a.rules[1:] {
		if t-r.LastActive <= a.p.LongTime {
			continue
		}

		if r.Specificity > 0 {
			specified = specified[:0]
			for bit := 0; bit < r.Cond.Len(); bit++ {
				if r.Cond.Get(bit) != bitvec.DontCare {
					specified = append(specified, bit)
				}
			}
			k := int(math.Ceil(float64(len(specified)) * a.p.GenFrac))
			for j := 0; j < k && len(specified) > 0; j++ {
				pos := a.rng.IntN(len(specified))
				r.Cond.Mask(specified[pos])
				specified[pos] = specified[len(specified)-1]
				specified = specified[:len(specified)-1]
			}
		}

		r.Count = 0
		r.LastActive = t
		r.refresh(&a.p)
		r.setVariance(a.p.MaxDev-avStrength+r.Specfactor, &a.p)
	}
}
