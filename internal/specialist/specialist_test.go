package specialist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// linearTrader demands k*(target-price) shares, capped at maxBid.
type linearTrader struct {
	k, target, maxBid float64
	cash, position    float64
	profit            float64
	queries           int
}

func (l *linearTrader) DemandAndSlope(price float64) (float64, float64) {
	l.queries++
	d := l.k * (l.target - price)
	if d > l.maxBid {
		return l.maxBid, 0
	}
	if d < -l.maxBid {
		return -l.maxBid, 0
	}
	return d, -l.k
}

func (l *linearTrader) Fill(demand, fraction, price float64) {
	l.position += demand * fraction
	l.cash -= demand * fraction * price
}

func (l *linearTrader) Position() float64 { return l.position }

func (l *linearTrader) AddProfit(decay, gain float64) { l.profit = decay*l.profit + gain }

func newSpecialist(t *testing.T, typ Type) *Specialist {
	t.Helper()
	p := DefaultParams()
	p.Type = typ
	s, err := New(p)
	require.NoError(t, err)
	return s
}

func traders(ts ...*linearTrader) []Trader {
	out := make([]Trader, len(ts))
	for i, tr := range ts {
		out[i] = tr
	}
	return out
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{"re": RE, "Slope": Slope, " ETA ": ETA} {
		got, err := ParseType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := ParseType("walrasian")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, Slope, got)
	assert.Equal(t, "eta", ETA.String())
}

func TestNew_Validation(t *testing.T) {
	p := DefaultParams()
	p.MaxPrice = p.MinPrice
	_, err := New(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.MaxIterations = 0
	_, err = New(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.Type = Type(9)
	_, err = New(p)
	assert.ErrorIs(t, err, ErrUnknownType)

	p = DefaultParams()
	p.Eta = 1
	s, err := New(p)
	require.NoError(t, err)
	assert.Equal(t, p.EtaMax, s.Params().Eta)
}

func TestPerformTrading_RationalExpectations(t *testing.T) {
	p := DefaultParams()
	p.Type = RE
	p.REA, p.REB = 2.0, 1.0
	s, err := New(p)
	require.NoError(t, err)

	buyer := &linearTrader{k: 1, target: 1000, maxBid: 10}
	seller := &linearTrader{k: 1, target: 0.5, maxBid: 10}
	res := s.PerformTrading(traders(buyer, seller), 80, 5.0)

	assert.Equal(t, 11.0, res.Price)
	assert.Equal(t, 1, res.Iterations)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, buyer.queries, "agents are still asked for volumes")
	assert.Equal(t, 10.0, res.Volume)
}

func TestPerformTrading_SlopeConverges(t *testing.T) {
	s := newSpecialist(t, Slope)
	a := &linearTrader{k: 0.5, target: 110, maxBid: 100}
	b := &linearTrader{k: 0.25, target: 80, maxBid: 100}

	res := s.PerformTrading(traders(a, b), 100, 10)

	// 0.5*(110-p) + 0.25*(80-p) = 0 at p = 100.
	assert.True(t, res.Converged)
	assert.InDelta(t, 100, res.Price, 0.05)
	assert.LessOrEqual(t, res.Iterations, 3)
}

func TestPerformTrading_SlopeMovesTowardClearing(t *testing.T) {
	s := newSpecialist(t, Slope)
	a := &linearTrader{k: 0.5, target: 150, maxBid: 1000}
	b := &linearTrader{k: 0.5, target: 130, maxBid: 1000}

	res := s.PerformTrading(traders(a, b), 100, 10)
	assert.InDelta(t, 140, res.Price, 1e-6)
	assert.True(t, res.Converged)
}

func TestPerformTrading_SlopeAcceptsLastPriceOnExhaustion(t *testing.T) {
	p := DefaultParams()
	p.MaxIterations = 3
	s, err := New(p)
	require.NoError(t, err)

	// Flat demand: slope is zero so the search falls back to eta steps.
	a := &linearTrader{k: 1, target: 1e6, maxBid: 5}
	res := s.PerformTrading(traders(a), 100, 10)

	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)
	assert.Greater(t, res.Price, 100.0)
	assert.Equal(t, 0.0, res.Volume)
	assert.Equal(t, 0.0, res.BidFraction)
}

func TestPerformTrading_SlopeBracketsOvershoot(t *testing.T) {
	s := newSpecialist(t, Slope)
	// b is clipped outside [145,155], so away from there the aggregate
	// slope is tiny and plain Newton steps overshoot to the price floor.
	a := &linearTrader{k: 0.01, target: 200, maxBid: 1000}
	b := &linearTrader{k: 1, target: 150, maxBid: 5}

	res := s.PerformTrading(traders(a, b), 100, 10)

	assert.True(t, res.Converged)
	assert.InDelta(t, 152/1.01, res.Price, 0.01)
	assert.LessOrEqual(t, res.Iterations, 8)
}

func TestPerformTrading_SlopeRisingDemandMovesWithImbalance(t *testing.T) {
	s := newSpecialist(t, Slope)
	// Negative k: demand rises with price, so the aggregate slope is positive.
	a := &linearTrader{k: -1, target: 50, maxBid: 1000}

	res := s.PerformTrading(traders(a), 100, 10)

	assert.False(t, res.Converged)
	assert.Greater(t, res.Price, 100.0)
	assert.Equal(t, DefaultParams().MaxIterations, res.Iterations)
}

func TestPerformTrading_ETA(t *testing.T) {
	p := DefaultParams()
	p.Type = ETA
	p.Eta = 0.01
	s, err := New(p)
	require.NoError(t, err)

	a := &linearTrader{k: 1, target: 105, maxBid: 100}
	res := s.PerformTrading(traders(a), 100, 10)

	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 2, a.queries)
	assert.InDelta(t, 100*(1+0.01*5), res.Price, 1e-12)
	assert.True(t, res.Converged, "demand is zero at the adjusted price")
}

func TestPerformTrading_ETAReportsUnclearedMarket(t *testing.T) {
	p := DefaultParams()
	p.Type = ETA
	p.Eta = 0.001
	s, err := New(p)
	require.NoError(t, err)

	a := &linearTrader{k: 1, target: 200, maxBid: 100}
	res := s.PerformTrading(traders(a), 100, 10)

	assert.InDelta(t, 110, res.Price, 1e-9)
	assert.InDelta(t, 90, res.Imbalance, 1e-9)
	assert.False(t, res.Converged)
}

func TestPerformTrading_ClipsPrice(t *testing.T) {
	p := DefaultParams()
	p.Type = RE
	p.REA, p.REB = -1, 0
	s, err := New(p)
	require.NoError(t, err)

	res := s.PerformTrading(nil, 100, 10)
	assert.Equal(t, p.MinPrice, res.Price)
}

func TestPerformTrading_ConservationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		typ := Type(rapid.IntRange(0, 2).Draw(rt, "type"))
		p := DefaultParams()
		p.Type = typ
		s, err := New(p)
		if err != nil {
			rt.Fatal(err)
		}

		n := rapid.IntRange(1, 12).Draw(rt, "n")
		ts := make([]*linearTrader, n)
		for i := range ts {
			ts[i] = &linearTrader{
				k:      rapid.Float64Range(0, 2).Draw(rt, "k"),
				target: rapid.Float64Range(1, 300).Draw(rt, "target"),
				maxBid: 10,
			}
		}
		res := s.PerformTrading(traders(ts...), rapid.Float64Range(1, 300).Draw(rt, "prev"), 10)

		if res.Volume > min(res.BidTotal, res.OfferTotal)+1e-12 {
			rt.Fatalf("volume %v exceeds min(%v,%v)", res.Volume, res.BidTotal, res.OfferTotal)
		}
		for _, f := range []float64{res.BidFraction, res.OfferFraction} {
			if f < 0 || f > 1+1e-12 {
				rt.Fatalf("fraction %v outside [0,1]", f)
			}
		}
		if res.Price < p.MinPrice || res.Price > p.MaxPrice {
			rt.Fatalf("price %v outside bounds", res.Price)
		}
	})
}

func TestCompleteTrades_ConservesCashAndShares(t *testing.T) {
	s := newSpecialist(t, Slope)
	buyer := &linearTrader{k: 1, target: 1000, maxBid: 10, cash: 5000, position: 1}
	small := &linearTrader{k: 1, target: 1000, maxBid: 2, cash: 5000, position: 1}
	seller := &linearTrader{k: 1, target: 1, maxBid: 4, cash: 5000, position: 1}
	ts := traders(buyer, small, seller)

	res := s.PerformTrading(ts, 100, 10)
	require.Equal(t, 12.0, res.BidTotal)
	require.Equal(t, 4.0, res.OfferTotal)

	var cashBefore, posBefore float64
	for _, tr := range []*linearTrader{buyer, small, seller} {
		cashBefore += tr.cash
		posBefore += tr.position
	}

	require.NoError(t, s.CompleteTrades(ts, res, 95, 10))

	var cashAfter, posAfter float64
	for _, tr := range []*linearTrader{buyer, small, seller} {
		cashAfter += tr.cash
		posAfter += tr.position
	}
	assert.InDelta(t, 0, (cashAfter-cashBefore)+(posAfter-posBefore)*res.Price, 1e-9)
	assert.InDelta(t, posBefore, posAfter, 1e-9)
	assert.InDelta(t, 1+10*res.BidFraction, buyer.position, 1e-12)
	assert.InDelta(t, -3, seller.position, 1e-12)
}

func TestCompleteTrades_Profit(t *testing.T) {
	p := DefaultParams()
	p.Type = RE
	p.REA, p.REB = 10, 0
	s, err := New(p)
	require.NoError(t, err)

	tr := &linearTrader{k: 0, maxBid: 1, position: 2}
	ts := traders(tr)
	res := s.PerformTrading(ts, 95, 10)
	require.NoError(t, s.CompleteTrades(ts, res, 95, 10))

	taupnew := 1 - 0.9801986733067553 // 1-exp(-1/50)
	assert.InDelta(t, taupnew*2*(100-95+10), tr.profit, 1e-9)
	assert.Equal(t, 2.0, tr.position)
}

func TestCompleteTrades_MismatchedDemands(t *testing.T) {
	s := newSpecialist(t, Slope)
	err := s.CompleteTrades(traders(&linearTrader{}), Result{}, 100, 10)
	assert.Error(t, err)
}
