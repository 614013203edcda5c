package specialist

// specialist.go — the market maker.
//
// PerformTrading searches for a clearing price, CompleteTrades settles
// every trader at it. Between the two calls the Result carries the
// final-pass demands so traders are never asked to remember them.

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Type selects the price-search policy.
type Type int

const (
	// RE sets price = rea*dividend + reb without consulting demand.
	RE Type = iota
	// Slope runs Newton steps on aggregate demand until it clears.
	Slope
	// ETA makes one proportional adjustment from the previous price.
	ETA
)

func (t Type) String() string {
	switch t {
	case RE:
		return "re"
	case Slope:
		return "slope"
	case ETA:
		return "eta"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ErrUnknownType is returned by ParseType for unrecognised names.
var ErrUnknownType = errors.New("unknown specialist type")

// ParseType accepts "re", "slope" or "eta" in any case.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "re":
		return RE, nil
	case "slope":
		return Slope, nil
	case "eta":
		return ETA, nil
	}
	return Slope, fmt.Errorf("specialist.ParseType: %q: %w", s, ErrUnknownType)
}

// Params configures the specialist.
type Params struct {
	Type          Type
	MinPrice      float64
	MaxPrice      float64
	MaxIterations int
	MinExcess     float64
	Eta           float64
	EtaMin        float64
	EtaMax        float64
	REA           float64
	REB           float64
	Taup          float64 // profit averaging horizon
}

// DefaultParams returns the classic specialist settings.
func DefaultParams() Params {
	return Params{
		Type:          Slope,
		MinPrice:      0.01,
		MaxPrice:      99999,
		MaxIterations: 10,
		MinExcess:     0.01,
		Eta:           0.0005,
		EtaMin:        0.00001,
		EtaMax:        0.05,
		REA:           9.0,
		REB:           0.0,
		Taup:          50,
	}
}

// Trader is the specialist's view of a market participant.
type Trader interface {
	DemandAndSlope(price float64) (demand, slope float64)
	Fill(demand, fraction, price float64)
	Position() float64
	AddProfit(decay, gain float64)
}

// Result describes one completed price search.
type Result struct {
	Price         float64
	Volume        float64
	BidTotal      float64
	OfferTotal    float64
	SlopeTotal    float64
	Imbalance     float64
	BidFraction   float64
	OfferFraction float64
	Iterations    int
	Converged     bool
	Demands       []float64
}

// Specialist clears the market each period.
type Specialist struct {
	p Params
}

// New validates p. Eta is clipped into [EtaMin, EtaMax] when those are set.
func New(p Params) (*Specialist, error) {
	if p.MinPrice <= 0 || p.MaxPrice <= p.MinPrice {
		return nil, fmt.Errorf("specialist.New: price bounds [%v,%v] invalid", p.MinPrice, p.MaxPrice)
	}
	if p.MaxIterations < 1 {
		return nil, fmt.Errorf("specialist.New: maxiterations must be positive, got %d", p.MaxIterations)
	}
	if p.MinExcess < 0 {
		return nil, fmt.Errorf("specialist.New: minexcess must be non-negative, got %v", p.MinExcess)
	}
	if p.Taup <= 0 {
		return nil, fmt.Errorf("specialist.New: taup must be positive, got %v", p.Taup)
	}
	if p.Type < RE || p.Type > ETA {
		return nil, fmt.Errorf("specialist.New: %v: %w", p.Type, ErrUnknownType)
	}
	if p.EtaMax > 0 && p.EtaMin <= p.EtaMax {
		p.Eta = min(max(p.Eta, p.EtaMin), p.EtaMax)
	}
	return &Specialist{p: p}, nil
}

// Params returns the effective parameters.
func (s *Specialist) Params() Params { return s.p }

// PerformTrading finds the period's price. In slope mode, running out
// of iterations is accepted: the last trial price stands.
func (s *Specialist) PerformTrading(traders []Trader, prevPrice, dividend float64) Result {
	res := Result{Demands: make([]float64, len(traders))}
	trial := prevPrice
	var br bracket

	for iter := 0; ; iter++ {
		switch s.p.Type {
		case RE:
			trial = s.p.REA*dividend + s.p.REB
		case Slope:
			if iter > 0 {
				trial = s.slopeStep(trial, res, &br)
			}
		case ETA:
			if iter > 0 {
				trial = prevPrice * (1 + s.p.Eta*res.Imbalance)
			}
		}
		trial = s.clip(trial)

		s.collect(traders, trial, &res)
		res.Iterations = iter + 1

		var done bool
		switch s.p.Type {
		case RE:
			done, res.Converged = true, true
		case ETA:
			done = iter >= 1
			res.Converged = math.Abs(res.Imbalance) <= s.p.MinExcess
		default:
			res.Converged = math.Abs(res.Imbalance) <= s.p.MinExcess
			done = res.Converged || res.Iterations >= s.p.MaxIterations
		}
		if done {
			break
		}
	}

	res.Price = trial
	res.Volume = min(res.BidTotal, res.OfferTotal)
	if res.BidTotal > 0 {
		res.BidFraction = res.Volume / res.BidTotal
	}
	if res.OfferTotal > 0 {
		res.OfferFraction = res.Volume / res.OfferTotal
	}
	return res
}

// slopeStep proposes the next slope-mode price. It takes a Newton step
// on aggregate excess demand when the aggregate slope is negative and a
// proportional eta step otherwise, since a Newton step on a rising
// demand curve moves the price against the imbalance. Once the clearing
// price is bracketed, steps that leave the bracket and eta steps are
// replaced by the geometric midpoint.
func (s *Specialist) slopeStep(trial float64, res Result, br *bracket) float64 {
	br.add(trial, res.Imbalance)

	next := trial * (1 + s.p.Eta*res.Imbalance)
	newton := res.SlopeTotal < 0
	if newton {
		next = trial - res.Imbalance/res.SlopeTotal
	}
	if br.closed() && (!newton || next <= br.lo || next >= br.hi || math.IsNaN(next)) {
		return math.Sqrt(br.lo * br.hi)
	}
	return next
}

// bracket holds the highest price seen with excess demand and the
// lowest seen with excess supply; zero means not seen yet.
type bracket struct {
	lo, hi float64
}

func (b *bracket) add(price, imbalance float64) {
	switch {
	case imbalance > 0 && (b.lo == 0 || price > b.lo):
		b.lo = price
	case imbalance < 0 && (b.hi == 0 || price < b.hi):
		b.hi = price
	}
}

func (b *bracket) closed() bool {
	return b.lo > 0 && b.hi > 0 && b.lo < b.hi
}

func (s *Specialist) clip(p float64) float64 {
	if math.IsNaN(p) {
		return s.p.MinPrice
	}
	return min(max(p, s.p.MinPrice), s.p.MaxPrice)
}

// collect queries every trader at price and totals bids, offers and slopes.
func (s *Specialist) collect(traders []Trader, price float64, res *Result) {
	res.BidTotal, res.OfferTotal, res.SlopeTotal = 0, 0, 0
	for i, tr := range traders {
		d, slope := tr.DemandAndSlope(price)
		res.Demands[i] = d
		res.SlopeTotal += slope
		if d > 0 {
			res.BidTotal += d
		} else if d < 0 {
			res.OfferTotal -= d
		}
	}
	res.Imbalance = res.BidTotal - res.OfferTotal
}

// CompleteTrades updates each trader's averaged profit with the
// holding gain since oldPrice and then applies its rationed fill.
func (s *Specialist) CompleteTrades(traders []Trader, res Result, oldPrice, dividend float64) error {
	if len(res.Demands) != len(traders) {
		return fmt.Errorf("specialist.CompleteTrades: %d demands for %d traders", len(res.Demands), len(traders))
	}

	taupnew := 1 - math.Exp(-1/s.p.Taup)
	decay := 1 - taupnew
	gainPerShare := res.Price - oldPrice + dividend

	for i, tr := range traders {
		tr.AddProfit(decay, taupnew*tr.Position()*gainPerShare)

		d := res.Demands[i]
		switch {
		case d > 0:
			tr.Fill(d, res.BidFraction, res.Price)
		case d < 0:
			tr.Fill(d, res.OfferFraction, res.Price)
		default:
			tr.Fill(0, 0, res.Price)
		}
	}
	return nil
}
