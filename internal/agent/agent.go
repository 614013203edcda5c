package agent

// agent.go — the bit-condition forecasting trader.
//
// Per period the engine calls, in order:
//   CreditEarnings    interest and dividends on last period's holdings
//   PrepareForTrading maybe run the GA, match rules, choose a forecast
//   DemandAndSlope    any number of times, one per trial price
//   Fill / AddProfit  settlement, driven by the specialist
//   UpdatePerformance score rules against the realised price+dividend

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/sfasm/internal/bitvec"
	"github.com/alejandrodnm/sfasm/internal/domain"
	"github.com/alejandrodnm/sfasm/internal/world"
)

// agentVarianceWindow is the averaging horizon of the agent-level
// forecast variance, independent of the rule horizon tauv.
const agentVarianceWindow = 100.0

// WorldView is what an agent reads from the market each period.
type WorldView interface {
	Bit(i int) bitvec.Trit
	Price() float64
	Dividend() float64
}

// Agent is one adaptive trader with its own rule population.
type Agent struct {
	id     int
	p      Params
	acct   Account
	rng    domain.Rand
	bitIdx []int

	cash     float64
	position float64
	wealth   float64
	profit   float64
	demand   float64

	rules     []*Rule
	active    []int
	oldActive []int
	view      *bitvec.Vector
	matcher   bitvec.Matcher

	dividend    float64
	pdcoeff     float64
	offset      float64
	forecastVar float64
	divisor     float64
	nactive     int

	forecast    float64
	lforecast   float64
	hasForecast bool
	forecastErr float64
	globalMean  float64
	variance    float64
	started     bool

	npool, nnew    int
	gaCount        int
	lastGATime     int
	avgSpecificity float64
}

// New builds an agent with a random rule population. Rule 0 has no
// specified conditions and serves as the permanent fallback.
func New(id int, p Params, acct Account, rng domain.Rand) (*Agent, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("agent.New: %w", err)
	}
	bitIdx, err := world.ResolveBits(p.CondBits)
	if err != nil {
		return nil, fmt.Errorf("agent.New: %w", err)
	}

	p.CondBits = append([]string(nil), p.CondBits...)
	condbits := len(p.CondBits)
	a := &Agent{
		id:        id,
		p:         p,
		acct:      acct,
		rng:       rng,
		bitIdx:    bitIdx,
		cash:      acct.InitialCash,
		position:  acct.InitialHolding,
		rules:     make([]*Rule, p.NumRules),
		active:    make([]int, 0, p.NumRules),
		oldActive: make([]int, 0, p.NumRules),
		view:      bitvec.New(condbits),
		variance:  p.InitVar,
	}
	a.matcher = bitvec.NewMatcher(a.view)
	a.npool, a.nnew = p.poolSizes()

	for i := range a.rules {
		r := a.randomRule(i > 0)
		a.rules[i] = r
	}
	a.forecastVar = p.InitVar
	a.divisor = p.Lambda * p.InitVar
	a.updateAvgSpecificity()
	return a, nil
}

func (a *Agent) randomRule(withConditions bool) *Rule {
	r := newRule(len(a.p.CondBits))
	if withConditions {
		for bit := 0; bit < r.Cond.Len(); bit++ {
			if a.rng.Float64() < a.p.BitProb {
				r.Cond.SetFromZero(bit, bitvec.Trit(a.rng.IntN(2)+1))
			}
		}
	}
	r.A = a.initialCoefficient(a.p.AMin, a.p.AMax)
	r.B = a.initialCoefficient(a.p.BMin, a.p.BMax)
	r.C = a.initialCoefficient(a.p.CMin, a.p.CMax)
	r.Variance = a.p.InitVar
	r.refresh(&a.p)
	return r
}

func (a *Agent) initialCoefficient(lo, hi float64) float64 {
	span := hi - lo
	base := lo + 0.5*(1-a.p.Subrange)*span
	return base + a.rng.Float64()*a.p.Subrange*span
}

// CreditEarnings pays interest on cash and dividends on shares, then
// charges tax at the interest rate on wealth, so that holding the risky
// asset earns dividend minus price*intrate per share.
func (a *Agent) CreditEarnings(price, dividend float64) {
	a.cash -= (price*a.acct.Intrate - dividend) * a.position
	if a.cash < a.acct.MinCash {
		a.cash = a.acct.MinCash
	}
	a.wealth = a.cash + price*a.position
}

// PrepareForTrading runs the GA when it is due, rebuilds the active
// rule list against the current world and fixes the forecast used for
// every trial price this period.
func (a *Agent) PrepareForTrading(w WorldView, t int) {
	if !a.started {
		a.globalMean = w.Price() + w.Dividend()
		a.started = true
	}

	if t >= a.p.FirstGATime && a.rng.Float64() < 1/a.p.GAFrequency {
		a.performGA(t)
		a.active = a.active[:0]
	}

	a.dividend = w.Dividend()
	for i, idx := range a.bitIdx {
		a.view.Set(i, w.Bit(idx))
	}
	a.matcher.Reset(a.view)

	a.oldActive, a.active = a.active, a.oldActive[:0]
	for i, r := range a.rules {
		if a.matcher.Matches(r.Cond) {
			r.Count++
			r.LastActive = t
			a.active = append(a.active, i)
		}
	}

	a.chooseForecast()
}

// chooseForecast picks the strongest experienced active rule. Without
// one it falls back to a usage-weighted average over the whole
// population, and without that to the unconditional mean.
func (a *Agent) chooseForecast() {
	var best *Rule
	maxStrength := math.Inf(-1)
	a.nactive = 0
	for _, i := range a.active {
		r := a.rules[i]
		if r.Count < a.p.MinCount {
			continue
		}
		a.nactive++
		if r.Strength > maxStrength {
			maxStrength = r.Strength
			best = r
		}
	}

	if best != nil {
		a.pdcoeff = best.A
		a.offset = best.B*a.dividend + best.C
		if a.p.Individual {
			a.forecastVar = best.Variance
		} else {
			a.forecastVar = a.variance
		}
	} else {
		var countsum, pd, off float64
		for _, r := range a.rules {
			if r.Count < a.p.MinCount {
				continue
			}
			w := float64(r.Count)
			countsum += w
			pd += r.A * w
			off += (r.B*a.dividend + r.C) * w
		}
		if countsum > 0 {
			a.pdcoeff = pd / countsum
			a.offset = off / countsum
		} else {
			a.pdcoeff = 0
			a.offset = a.globalMean
		}
		a.forecastVar = a.variance
	}

	a.forecastVar = max(a.forecastVar, minVariance)
	a.divisor = a.p.Lambda * a.forecastVar
}

// DemandAndSlope returns the agent's desired trade at trialPrice and
// the derivative of that demand with respect to price. It does not
// modify the agent.
func (a *Agent) DemandAndSlope(trialPrice float64) (demand, slope float64) {
	intp1 := 1 + a.acct.Intrate
	forecast := (trialPrice+a.dividend)*a.pdcoeff + a.offset

	if forecast >= 0 {
		demand = (forecast-trialPrice*intp1)/a.divisor - a.position
		slope = (a.pdcoeff - intp1) / a.divisor
	} else {
		demand = -(trialPrice*intp1/a.divisor + a.position)
		slope = -intp1 / a.divisor
	}

	if demand > a.p.MaxBid {
		demand, slope = a.p.MaxBid, 0
	} else if demand < -a.p.MaxBid {
		demand, slope = -a.p.MaxBid, 0
	}

	return a.constrainDemand(demand, slope, trialPrice)
}

// constrainDemand enforces the borrowing and short-sale limits.
func (a *Agent) constrainDemand(demand, slope, trialPrice float64) (float64, float64) {
	if demand > 0 {
		if demand*trialPrice > a.cash-a.acct.MinCash {
			if a.cash-a.acct.MinCash > 0 {
				demand = (a.cash - a.acct.MinCash) / trialPrice
			} else {
				demand = 0
			}
			slope = 0
		}
	} else if demand < 0 && demand+a.position < a.acct.MinHolding {
		demand = a.acct.MinHolding - a.position
		slope = 0
	}
	return demand, slope
}

// Fill applies the rationed share of demand at price.
func (a *Agent) Fill(demand, fraction, price float64) {
	a.demand = demand
	filled := demand * fraction
	a.position += filled
	a.cash -= filled * price
	a.wealth = a.cash + price*a.position
}

// AddProfit folds one period's holding profit into the decaying average.
func (a *Agent) AddProfit(decay, gain float64) {
	a.profit = decay*a.profit + gain
}

// UpdatePerformance scores last period's active rules against the
// realised price+dividend and refreshes the forecasts of this period's
// active rules.
func (a *Agent) UpdatePerformance(price, dividend float64, t int) {
	ftarget := price + dividend
	ra := 1 / a.p.Tauv
	rb := 1 - ra
	av := 1 / agentVarianceWindow
	bv := 1 - av

	if a.hasForecast {
		dev := ftarget - a.forecast
		a.forecastErr = dev
		a.variance = max(bv*a.variance+av*min(dev*dev, a.p.MaxDev), minVariance)
	}
	a.globalMean = rb*a.globalMean + ra*ftarget

	for _, i := range a.oldActive {
		r := a.rules[i]
		dev := ftarget - r.Forecast
		sq := min(dev*dev, a.p.MaxDev)
		if float64(r.Count) > a.p.Tauv {
			r.setVariance(rb*r.Variance+ra*sq, &a.p)
		} else {
			c := 1 / (1 + float64(r.Count))
			r.setVariance((1-c)*r.Variance+c*sq, &a.p)
		}
	}

	for _, i := range a.active {
		r := a.rules[i]
		r.LForecast = r.Forecast
		r.Forecast = r.ForecastFor(price, dividend)
	}

	a.lforecast = a.forecast
	a.forecast = a.pdcoeff*ftarget + a.offset
	a.hasForecast = true
	a.wealth = a.cash + price*a.position
}

func (a *Agent) updateAvgSpecificity() {
	total := 0
	for _, r := range a.rules {
		total += r.Specificity
	}
	a.avgSpecificity = float64(total) / float64(len(a.rules))
}

// ID returns the agent's index in the market.
func (a *Agent) ID() int { return a.id }

// Cash returns the cash balance.
func (a *Agent) Cash() float64 { return a.cash }

// Position returns the share holding.
func (a *Agent) Position() float64 { return a.position }

// Wealth returns cash plus holdings at the last known price.
func (a *Agent) Wealth() float64 { return a.wealth }

// Profit returns the exponentially averaged holding profit.
func (a *Agent) Profit() float64 { return a.profit }

// Demand returns the demand submitted at the last settlement.
func (a *Agent) Demand() float64 { return a.demand }

// Forecast returns the agent's forecast of next period's price+dividend.
func (a *Agent) Forecast() float64 { return a.forecast }

// ForecastError returns the last realised forecast error.
func (a *Agent) ForecastError() float64 { return a.forecastErr }

// Variance returns the agent-level forecast variance.
func (a *Agent) Variance() float64 { return a.variance }

// ActiveCount returns the number of rules matching the current world.
func (a *Agent) ActiveCount() int { return len(a.active) }

// GACount returns how many GA runs the agent has performed.
func (a *Agent) GACount() int { return a.gaCount }

// LastGATime returns the period of the last GA run.
func (a *Agent) LastGATime() int { return a.lastGATime }

// AvgSpecificity returns the mean specificity of the population after
// the last GA run.
func (a *Agent) AvgSpecificity() float64 { return a.avgSpecificity }

// Params returns the agent's private parameter copy.
func (a *Agent) Params() Params { return a.p }

// Rules returns copies of the rule population.
func (a *Agent) Rules() []*Rule {
	out := make([]*Rule, len(a.rules))
	for i, r := range a.rules {
		out[i] = r.Clone()
	}
	return out
}

// Snapshot captures the observable state for reporting.
func (a *Agent) Snapshot(period int) domain.AgentSnapshot {
	return domain.AgentSnapshot{
		AgentID:        a.id,
		Period:         period,
		Cash:           a.cash,
		Position:       a.position,
		Wealth:         a.wealth,
		Profit:         a.profit,
		Forecast:       a.forecast,
		ForecastError:  a.forecastErr,
		Variance:       a.variance,
		ActiveRules:    len(a.active),
		GACount:        a.gaCount,
		AvgSpecificity: a.avgSpecificity,
	}
}
