package world

// world.go — market state and the condition-bit encoder.
//
// Per period the caller does SetDividend, Update, (trading), SetPrice.
// Update rolls the up/down trackers, pushes histories and moving
// averages, then rebuilds all NumWorldBits predicates in table order.

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/sfasm/internal/bitvec"
	"github.com/alejandrodnm/sfasm/internal/domain"
)

// Params configures a World.
type Params struct {
	Intrate        float64
	Baseline       float64
	ExponentialMAs bool
}

// MarketState is the live price and dividend. Observers may read it
// through State; only SetPrice and SetDividend are allowed to write it.
type MarketState struct {
	Price    float64
	Dividend float64
}

// World holds the market history and the current condition bits.
type World struct {
	params Params
	rng    domain.Rand

	state       MarketState
	saved       MarketState
	oldPrice    float64
	oldDividend float64
	riskNeutral float64

	priceHist  [MaxHistory]float64
	divHist    [MaxHistory]float64
	historyTop int

	pUpDown   [UpDownLookback]bool
	dUpDown   [UpDownLookback]bool
	updownTop int

	priceMA    [NumMAs]*MovingAverage
	divMA      [NumMAs]*MovingAverage
	oldPriceMA [NumMAs]*MovingAverage
	oldDivMA   [NumMAs]*MovingAverage

	bits *bitvec.Vector

	priceSet    bool
	dividendSet bool
	illegal     int
	updates     int
}

// New creates a World in the steady state implied by the baseline
// dividend: price = baseline/intrate, all histories flat.
func New(p Params, rng domain.Rand) (*World, error) {
	if p.Intrate <= 0 {
		return nil, fmt.Errorf("world.New: intrate must be positive, got %v", p.Intrate)
	}
	if p.Baseline <= 0 {
		return nil, fmt.Errorf("world.New: baseline must be positive, got %v", p.Baseline)
	}

	price := p.Baseline / p.Intrate
	div := p.Baseline
	w := &World{
		params:      p,
		rng:         rng,
		state:       MarketState{Price: price, Dividend: div},
		oldPrice:    price,
		oldDividend: div,
		riskNeutral: div / p.Intrate,
		bits:        bitvec.New(NumWorldBits),
	}
	w.saved = w.state

	for i := range w.priceHist {
		w.priceHist[i] = price
		w.divHist[i] = div
	}
	for i, width := range MAWidths {
		w.priceMA[i] = NewMovingAverage(width, price)
		w.priceMA[i].Seed(price)
		w.divMA[i] = NewMovingAverage(width, div)
		w.divMA[i].Seed(div)
		w.oldPriceMA[i] = NewMovingAverage(width, price)
		w.oldPriceMA[i].Seed(price)
		w.oldDivMA[i] = NewMovingAverage(width, div)
		w.oldDivMA[i].Seed(div)
	}

	w.encode()
	return w, nil
}

// SetPrice records the clearing price for the current period.
func (w *World) SetPrice(p float64) {
	if w.state.Price != w.saved.Price {
		w.illegal++
		slog.Warn("world: price was changed illegally",
			"saved", w.saved.Price, "found", w.state.Price)
	}
	if w.priceSet {
		slog.Warn("world: price set twice in one period", "price", p)
	}
	w.oldPrice = w.state.Price
	w.state.Price = p
	w.saved.Price = p
	w.priceSet = true
}

// SetDividend records the dividend for the current period.
func (w *World) SetDividend(d float64) {
	if w.state.Dividend != w.saved.Dividend {
		w.illegal++
		slog.Warn("world: dividend was changed illegally",
			"saved", w.saved.Dividend, "found", w.state.Dividend)
	}
	if w.dividendSet {
		slog.Warn("world: dividend set twice in one period", "dividend", d)
	}
	w.oldDividend = w.state.Dividend
	w.state.Dividend = d
	w.saved.Dividend = d
	w.riskNeutral = d / w.params.Intrate
	w.dividendSet = true
}

// Update advances the histories by one period and recomputes the bits.
// It must run after SetDividend and before trading.
func (w *World) Update() {
	price, div := w.state.Price, w.state.Dividend

	w.updownTop = (w.updownTop + 1) % UpDownLookback
	w.pUpDown[w.updownTop] = price > w.oldPrice
	w.dUpDown[w.updownTop] = div > w.oldDividend

	for i, width := range MAWidths {
		ago := (w.historyTop - (width - 1) + MaxHistory) % MaxHistory
		w.priceMA[i].Add(price)
		w.divMA[i].Add(div)
		w.oldPriceMA[i].Add(w.priceHist[ago])
		w.oldDivMA[i].Add(w.divHist[ago])
	}

	w.historyTop = (w.historyTop + 1) % MaxHistory
	w.priceHist[w.historyTop] = price
	w.divHist[w.historyTop] = div

	w.encode()
	w.priceSet = false
	w.dividendSet = false
	w.updates++
}

// encode rebuilds every world bit in table order.
func (w *World) encode() {
	price, div := w.state.Price, w.state.Dividend
	i := 0
	put := func(b bool) {
		w.bits.Set(i, bitvec.FromBool(b))
		i++
	}

	put(true)
	put(false)
	put(w.rng.IntN(2) == 1)

	for j := 0; j < UpDownLookback; j++ {
		put(w.dUpDown[(w.updownTop+UpDownLookback-j)%UpDownLookback])
	}
	for j := 0; j < NumMAs; j++ {
		put(w.ma(w.divMA[j]) > w.ma(w.oldDivMA[j]))
	}
	for j := 0; j < NumMAs; j++ {
		put(div > w.ma(w.divMA[j]))
	}
	for j := 0; j < NumMAs-1; j++ {
		for k := j + 1; k < NumMAs; k++ {
			put(w.ma(w.divMA[j]) > w.ma(w.divMA[k]))
		}
	}

	putRatios := func(multiple float64) {
		exceeded := 0
		for _, r := range Ratios {
			if multiple > r {
				exceeded++
			}
		}
		for j := 0; j < NumRatios; j++ {
			put(exceeded > j)
		}
	}
	putRatios(div / w.params.Baseline)
	if div > 0 {
		putRatios(price * w.params.Intrate / div)
	} else {
		putRatios(math.Inf(1))
	}

	for j := 0; j < UpDownLookback; j++ {
		put(w.pUpDown[(w.updownTop+UpDownLookback-j)%UpDownLookback])
	}
	for j := 0; j < NumMAs; j++ {
		put(w.ma(w.priceMA[j]) > w.ma(w.oldPriceMA[j]))
	}
	for j := 0; j < NumMAs; j++ {
		put(price > w.ma(w.priceMA[j]))
	}
	for j := 0; j < NumMAs-1; j++ {
		for k := j + 1; k < NumMAs; k++ {
			put(w.ma(w.priceMA[j]) > w.ma(w.priceMA[k]))
		}
	}

	if i != NumWorldBits {
		panic(fmt.Sprintf("world: encoded %d bits, table has %d", i, NumWorldBits))
	}
}

func (w *World) ma(m *MovingAverage) float64 {
	if w.params.ExponentialMAs {
		return m.EWMA()
	}
	return m.Mean()
}

// PriceTrend returns +1 if the price rose in each of the last n periods,
// -1 if it never rose, 0 otherwise.
func (w *World) PriceTrend(n int) (int, error) {
	if n < 1 || n > UpDownLookback {
		return 0, fmt.Errorf("world.PriceTrend: lookback %d outside [1,%d]", n, UpDownLookback)
	}
	ups := 0
	for j := 0; j < n; j++ {
		if w.pUpDown[(w.updownTop+UpDownLookback-j)%UpDownLookback] {
			ups++
		}
	}
	switch ups {
	case n:
		return 1, nil
	case 0:
		return -1, nil
	default:
		return 0, nil
	}
}

// Price returns the current price.
func (w *World) Price() float64 { return w.state.Price }

// OldPrice returns the previous period's price.
func (w *World) OldPrice() float64 { return w.oldPrice }

// Dividend returns the current dividend.
func (w *World) Dividend() float64 { return w.state.Dividend }

// OldDividend returns the previous period's dividend.
func (w *World) OldDividend() float64 { return w.oldDividend }

// RiskNeutral returns dividend/intrate.
func (w *World) RiskNeutral() float64 { return w.riskNeutral }

// RationalExpectations returns the linear rational-expectations price.
func (w *World) RationalExpectations(rea, reb float64) float64 {
	return rea*w.state.Dividend + reb
}

// PriceMA returns the i-th price moving average (plain or exponential per Params).
func (w *World) PriceMA(i int) float64 { return w.ma(w.priceMA[i]) }

// DividendMA returns the i-th dividend moving average.
func (w *World) DividendMA(i int) float64 { return w.ma(w.divMA[i]) }

// Bits returns the current condition bits. The vector is owned by the
// World and rewritten by Update.
func (w *World) Bits() *bitvec.Vector { return w.bits }

// Bit returns the current value of world bit i.
func (w *World) Bit(i int) bitvec.Trit { return w.bits.Get(i) }

// State exposes the live market state to observers.
func (w *World) State() *MarketState { return &w.state }

// IllegalChanges counts setter calls that found the state modified behind
// the World's back.
func (w *World) IllegalChanges() int { return w.illegal }

// Updates counts calls to Update.
func (w *World) Updates() int { return w.updates }

// Baseline returns the mean dividend used by the ratio bits.
func (w *World) Baseline() float64 { return w.params.Baseline }

// Intrate returns the interest rate the World was built with.
func (w *World) Intrate() float64 { return w.params.Intrate }
