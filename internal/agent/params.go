package agent

import (
	"errors"
	"fmt"
	"math"

	"github.com/alejandrodnm/sfasm/internal/world"
)

// MaxCondBits bounds the number of condition bits a rule may carry.
const MaxCondBits = 80

// Params holds the forecasting and GA parameters of one agent. Every
// agent gets its own copy, so individual agents may be tuned without
// touching the shared configuration.
type Params struct {
	NumRules    int
	CondBits    []string // world bit names, in condition order
	MinCount    int      // experience needed before a rule is trusted
	GAFrequency float64  // mean periods between GA runs
	FirstGATime int      // no GA before this period
	LongTime    int      // idle periods before a rule is generalized
	BitProb     float64  // chance a new rule's bit is specified
	Individual  bool     // use the best rule's variance instead of the agent's

	Tauv    float64 // averaging horizon for rule variances
	Lambda  float64 // risk aversion
	MaxBid  float64
	InitVar float64
	MaxDev  float64
	BitCost float64

	AMin, AMax float64
	BMin, BMax float64
	CMin, CMax float64
	Subrange   float64 // fraction of each coefficient range used at init

	PoolFrac   float64
	NewFrac    float64
	PCrossover float64
	PLinear    float64
	PRandom    float64
	PMutation  float64
	PLong      float64
	PShort     float64
	NHood      float64
	GenFrac    float64
}

// Account is an agent's starting balance sheet and its limits.
type Account struct {
	InitialCash    float64
	InitialHolding float64
	MinCash        float64
	MinHolding     float64
	Intrate        float64
}

// DefaultParams returns the classic parameter set.
func DefaultParams() Params {
	return Params{
		NumRules: 100,
		CondBits: []string{
			"pr/d>1/2", "pr/d>3/4", "pr/d>7/8", "pr/d>1", "pr/d>9/8", "pr/d>5/4",
			"p>p5", "p>p20", "p>p100", "p>p500", "pup", "dup",
		},
		MinCount:    2,
		GAFrequency: 250,
		FirstGATime: 250,
		LongTime:    4000,
		BitProb:     0.1,
		Tauv:        75,
		Lambda:      0.2,
		MaxBid:      10,
		InitVar:     4.0,
		MaxDev:      100,
		BitCost:     0.01,
		AMin:        0.7,
		AMax:        1.2,
		BMin:        0,
		BMax:        0,
		CMin:        -10,
		CMax:        19.002,
		Subrange:    0.5,
		PoolFrac:    0.2,
		NewFrac:     0.1,
		PCrossover:  0.3,
		PLinear:     0.333,
		PRandom:     0.333,
		PMutation:   0.01,
		PLong:       0.05,
		PShort:      0.2,
		NHood:       0.05,
		GenFrac:     0.25,
	}
}

// DefaultAccount returns the classic starting balance sheet.
func DefaultAccount() Account {
	return Account{
		InitialCash:    20000,
		InitialHolding: 1,
		MinCash:        -2000,
		MinHolding:     -5,
		Intrate:        0.1,
	}
}

// Validate reports every parameter that makes the agent unusable.
func (p Params) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if p.NumRules < 3 {
		add("num_rules must be at least 3, got %d", p.NumRules)
	}
	n := len(p.CondBits)
	if n == 0 || n > MaxCondBits {
		add("cond_bits must list 1..%d bits, got %d", MaxCondBits, n)
	}
	if _, err := world.ResolveBits(p.CondBits); err != nil {
		errs = append(errs, err)
	}
	if 1+p.BitCost*float64(n) <= 0 {
		add("bitcost %v too negative for %d condition bits", p.BitCost, n)
	}
	if p.MinCount < 0 {
		add("min_count must be non-negative, got %d", p.MinCount)
	}
	if p.GAFrequency <= 0 {
		add("ga_frequency must be positive, got %v", p.GAFrequency)
	}
	if p.Tauv <= 0 {
		add("tauv must be positive, got %v", p.Tauv)
	}
	if p.Lambda <= 0 {
		add("lambda must be positive, got %v", p.Lambda)
	}
	if p.MaxBid <= 0 {
		add("maxbid must be positive, got %v", p.MaxBid)
	}
	if p.InitVar <= 0 || p.MaxDev <= 0 {
		add("initvar and maxdev must be positive, got %v and %v", p.InitVar, p.MaxDev)
	}
	if p.AMin > p.AMax || p.BMin > p.BMax || p.CMin > p.CMax {
		add("coefficient ranges must have min <= max")
	}
	for name, v := range map[string]float64{
		"bitprob": p.BitProb, "subrange": p.Subrange, "poolfrac": p.PoolFrac,
		"newfrac": p.NewFrac, "pcrossover": p.PCrossover, "plinear": p.PLinear,
		"prandom": p.PRandom, "pmutation": p.PMutation, "plong": p.PLong,
		"pshort": p.PShort, "nhood": p.NHood, "genfrac": p.GenFrac,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			add("%s must lie in [0,1], got %v", name, v)
		}
	}
	if p.PLinear+p.PRandom > 1 {
		add("plinear + prandom must not exceed 1")
	}
	if p.PLong+p.PShort > 1 {
		add("plong + pshort must not exceed 1")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("agent.Params: %w", errors.Join(errs...))
}

// poolSizes returns the reject-pool size and the number of new rules per
// GA run, clipped so that 1 <= nnew <= npool <= NumRules-1.
func (p Params) poolSizes() (npool, nnew int) {
	npool = int(math.Round(p.PoolFrac * float64(p.NumRules)))
	npool = min(max(npool, 1), p.NumRules-1)
	nnew = int(math.Round(p.NewFrac * float64(p.NumRules)))
	nnew = min(max(nnew, 1), npool)
	return npool, nnew
}
