package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/sfasm/internal/agent"
	"github.com/alejandrodnm/sfasm/internal/application/engine"
	"github.com/alejandrodnm/sfasm/internal/dividend"
	"github.com/alejandrodnm/sfasm/internal/domain"
	"github.com/alejandrodnm/sfasm/internal/ports"
	"github.com/alejandrodnm/sfasm/internal/specialist"
	"github.com/alejandrodnm/sfasm/internal/world"
)

const (
	DefaultWarmupPeriods = 501
	DefaultFlushEvery    = 500
	progressInterval     = 5 * time.Second
)

// Config holds everything a simulation run needs.
type Config struct {
	NumAgents     int
	WarmupPeriods int
	Periods       int
	Seed          uint64
	Workers       int // agent preparation workers, 0 = NumCPU
	FlushEvery    int // periods per storage batch
	SnapshotEvery int // agent snapshot interval, 0 = only at the end

	World      world.Params
	Dividend   dividend.Params
	Specialist specialist.Params
	Agent      agent.Params
	Account    agent.Account
}

// Engine owns the world, the specialist, the dividend process and the
// agents, and sequences them period by period.
type Engine struct {
	cfg      Config
	store    ports.Storage // nil in dry-run mode
	reporter ports.Reporter

	world   *world.World
	spec    *specialist.Specialist
	div     *dividend.Process
	agents  []*agent.Agent
	traders []specialist.Trader

	period   int
	warmedUp bool
	rows     []domain.PeriodResult
	pending  []domain.PeriodResult
	progress rate.Sometimes
}

// New builds the market. store and reporter may be nil.
func New(cfg Config, store ports.Storage, reporter ports.Reporter) (*Engine, error) {
	if cfg.NumAgents < 1 {
		return nil, fmt.Errorf("market.New: numagents must be positive, got %d", cfg.NumAgents)
	}
	if cfg.WarmupPeriods < 0 {
		cfg.WarmupPeriods = DefaultWarmupPeriods
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = DefaultFlushEvery
	}
	cfg.Account.Intrate = cfg.World.Intrate
	cfg.World.Baseline = cfg.Dividend.Baseline

	w, err := world.New(cfg.World, domain.NewRand(domain.ChildSeed(cfg.Seed, 1)))
	if err != nil {
		return nil, fmt.Errorf("market.New: %w", err)
	}
	div, err := dividend.New(cfg.Dividend, domain.NewRand(domain.ChildSeed(cfg.Seed, 0)))
	if err != nil {
		return nil, fmt.Errorf("market.New: %w", err)
	}
	spec, err := specialist.New(cfg.Specialist)
	if err != nil {
		return nil, fmt.Errorf("market.New: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		reporter: reporter,
		world:    w,
		spec:     spec,
		div:      div,
		agents:   make([]*agent.Agent, cfg.NumAgents),
		traders:  make([]specialist.Trader, cfg.NumAgents),
		progress: rate.Sometimes{First: 1, Interval: progressInterval},
	}
	for i := range e.agents {
		a, err := agent.New(i, cfg.Agent, cfg.Account, domain.NewRand(domain.ChildSeed(cfg.Seed, 2+i)))
		if err != nil {
			return nil, fmt.Errorf("market.New: agent %d: %w", i, err)
		}
		e.agents[i] = a
		e.traders[i] = a
	}
	return e, nil
}

// Warmup builds market history with fundamental prices only: each
// period the price is set to dividend/intrate and no agent trades.
func (e *Engine) Warmup(ctx context.Context) error {
	if e.warmedUp {
		return nil
	}
	for i := 0; i < e.cfg.WarmupPeriods; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("market.Warmup: %w", err)
		}
		d := e.div.Next()
		e.world.SetDividend(d)
		e.world.Update()
		e.world.SetPrice(d / e.cfg.World.Intrate)
	}
	e.warmedUp = true
	slog.Debug("market: warmup done",
		"periods", e.cfg.WarmupPeriods,
		"price", e.world.Price(),
		"dividend", e.world.Dividend(),
	)
	return nil
}

// Step simulates one trading period.
func (e *Engine) Step(ctx context.Context) (domain.PeriodResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.PeriodResult{}, fmt.Errorf("market.Step: %w", err)
	}
	e.period++
	t := e.period

	d := e.div.Next()
	e.world.SetDividend(d)
	e.world.Update()

	oldPrice := e.world.Price()
	gaBefore := 0
	for _, a := range e.agents {
		a.CreditEarnings(oldPrice, d)
		gaBefore += a.GACount()
	}

	prepareAgentsConcurrent(e.agents, e.world, t, e.cfg.Workers)

	res := e.spec.PerformTrading(e.traders, oldPrice, d)
	e.world.SetPrice(res.Price)
	if err := e.spec.CompleteTrades(e.traders, res, oldPrice, d); err != nil {
		return domain.PeriodResult{}, fmt.Errorf("market.Step: %w", err)
	}

	gaRuns := -gaBefore
	var forecastSum float64
	for _, a := range e.agents {
		a.UpdatePerformance(res.Price, d, t)
		forecastSum += a.Forecast()
		gaRuns += a.GACount()
	}

	return domain.PeriodResult{
		Period:         t,
		Price:          res.Price,
		Dividend:       d,
		Volume:         res.Volume,
		RiskNeutral:    e.world.RiskNeutral(),
		BidTotal:       res.BidTotal,
		OfferTotal:     res.OfferTotal,
		Iterations:     res.Iterations,
		Converged:      res.Converged,
		MeanForecast:   forecastSum / float64(len(e.agents)),
		GARuns:         gaRuns,
		IllegalChanges: e.world.IllegalChanges(),
	}, nil
}

// Run warms up and simulates cfg.Periods periods. A cancelled context
// stops the run after the current period; the partial run is still
// saved and summarised.
func (e *Engine) Run(ctx context.Context) (domain.RunResult, error) {
	run := domain.Run{
		ID:             uuid.New().String(),
		Seed:           e.cfg.Seed,
		NumAgents:      e.cfg.NumAgents,
		SpecialistType: e.cfg.Specialist.Type.String(),
		WarmupPeriods:  e.cfg.WarmupPeriods,
		Periods:        e.cfg.Periods,
		StartedAt:      time.Now().UTC(),
		Status:         domain.RunStatusRunning,
	}
	params := e.Params()
	e.saveRun(ctx, run)
	if e.store != nil {
		if err := e.store.SaveParams(ctx, run.ID, params); err != nil {
			slog.Warn("market: error saving params", "run", run.ID, "err", err)
		}
	}
	if e.reporter != nil {
		e.reporter.PrintParams(params)
	}

	slog.Info("market: run started",
		"run", run.ID,
		"agents", e.cfg.NumAgents,
		"periods", e.cfg.Periods,
		"specialist", run.SpecialistType,
		"seed", e.cfg.Seed,
	)

	var runErr error
	if err := e.Warmup(ctx); err != nil {
		runErr = err
	}

	for runErr == nil && e.period < e.cfg.Periods {
		row, err := e.Step(ctx)
		if err != nil {
			runErr = err
			break
		}
		e.record(ctx, run.ID, row)

		if e.cfg.SnapshotEvery > 0 && row.Period%e.cfg.SnapshotEvery == 0 {
			e.saveSnapshots(ctx, run.ID)
		}
	}

	e.flush(context.WithoutCancel(ctx), run.ID)
	e.saveSnapshots(context.WithoutCancel(ctx), run.ID)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Completed = e.period
	switch {
	case runErr == nil:
		run.Status = domain.RunStatusCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		run.Status = domain.RunStatusCancelled
		slog.Warn("market: run interrupted", "run", run.ID, "completed", e.period)
		runErr = nil
	default:
		run.Status = domain.RunStatusFailed
	}
	e.saveRun(context.WithoutCancel(ctx), run)

	result := domain.RunResult{
		Run:     run,
		Summary: domain.Summarize(e.rows),
		Agents:  e.Snapshots(),
	}
	if len(e.rows) > 0 {
		result.Last = e.rows[len(e.rows)-1]
	}

	slog.Info("market: run finished",
		"run", run.ID,
		"status", run.Status,
		"periods", run.Completed,
		"mean_price", result.Summary.MeanPrice,
		"mean_volume", result.Summary.MeanVolume,
	)
	if e.reporter != nil {
		e.reporter.PrintSummary(result)
	}
	return result, runErr
}

// record keeps the row for the summary, queues it for storage and
// reports progress.
func (e *Engine) record(ctx context.Context, runID string, row domain.PeriodResult) {
	e.rows = append(e.rows, row)
	e.pending = append(e.pending, row)
	if len(e.pending) >= e.cfg.FlushEvery {
		e.flush(ctx, runID)
	}

	if e.reporter != nil {
		e.reporter.PrintProgress(row)
	}
	e.progress.Do(func() {
		slog.Info("market: progress",
			"period", row.Period,
			"price", row.Price,
			"dividend", row.Dividend,
			"volume", row.Volume,
		)
	})
}

func (e *Engine) flush(ctx context.Context, runID string) {
	if len(e.pending) == 0 {
		return
	}
	if e.store != nil {
		if err := e.store.SavePeriods(ctx, runID, e.pending); err != nil {
			slog.Warn("market: error saving periods", "run", runID, "rows", len(e.pending), "err", err)
		}
	}
	e.pending = e.pending[:0]
}

func (e *Engine) saveRun(ctx context.Context, run domain.Run) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRun(ctx, run); err != nil {
		slog.Warn("market: error saving run", "run", run.ID, "err", err)
	}
}

func (e *Engine) saveSnapshots(ctx context.Context, runID string) {
	if e.store == nil || e.period == 0 {
		return
	}
	if err := e.store.SaveAgentSnapshots(ctx, runID, e.Snapshots()); err != nil {
		slog.Warn("market: error saving agent snapshots", "run", runID, "err", err)
	}
}

// Snapshots returns the current state of every agent.
func (e *Engine) Snapshots() []domain.AgentSnapshot {
	out := make([]domain.AgentSnapshot, len(e.agents))
	for i, a := range e.agents {
		out[i] = a.Snapshot(e.period)
	}
	return out
}

// Params returns the key=value parameter dump of the run.
func (e *Engine) Params() []domain.Param {
	var d engine.ParamDump
	c := e.cfg
	d.Add("numagents", c.NumAgents)
	d.Add("seed", c.Seed)
	d.Add("warmup_periods", c.WarmupPeriods)
	d.Add("periods", c.Periods)
	d.Add("intrate", c.World.Intrate)
	d.Add("baseline", c.World.Baseline)
	d.Add("exponential_mas", c.World.ExponentialMAs)
	d.Add("dividend_min", c.Dividend.Min)
	d.Add("dividend_max", c.Dividend.Max)
	d.Add("dividend_amplitude", c.Dividend.Amplitude)
	d.Add("dividend_period", c.Dividend.Period)

	sp := e.spec.Params()
	d.Add("specialist", sp.Type)
	d.Add("minprice", sp.MinPrice)
	d.Add("maxprice", sp.MaxPrice)
	d.Add("maxiterations", sp.MaxIterations)
	d.Add("minexcess", sp.MinExcess)
	d.Add("eta", sp.Eta)
	d.Add("rea", sp.REA)
	d.Add("reb", sp.REB)
	d.Add("taup", sp.Taup)

	d.Add("initialcash", c.Account.InitialCash)
	d.Add("initialholding", c.Account.InitialHolding)
	d.Add("mincash", c.Account.MinCash)
	d.Add("minholding", c.Account.MinHolding)

	p := c.Agent
	d.Add("numfcasts", p.NumRules)
	d.Add("condbits", p.CondBits)
	d.Add("mincount", p.MinCount)
	d.Add("gafrequency", p.GAFrequency)
	d.Add("firstgatime", p.FirstGATime)
	d.Add("longtime", p.LongTime)
	d.Add("bitprob", p.BitProb)
	d.Add("individual", p.Individual)
	d.Add("tauv", p.Tauv)
	d.Add("lambda", p.Lambda)
	d.Add("maxbid", p.MaxBid)
	d.Add("initvar", p.InitVar)
	d.Add("maxdev", p.MaxDev)
	d.Add("bitcost", p.BitCost)
	d.Add("a_range", fmt.Sprintf("[%g,%g]", p.AMin, p.AMax))
	d.Add("b_range", fmt.Sprintf("[%g,%g]", p.BMin, p.BMax))
	d.Add("c_range", fmt.Sprintf("[%g,%g]", p.CMin, p.CMax))
	d.Add("subrange", p.Subrange)
	d.Add("poolfrac", p.PoolFrac)
	d.Add("newfrac", p.NewFrac)
	d.Add("pcrossover", p.PCrossover)
	d.Add("plinear", p.PLinear)
	d.Add("prandom", p.PRandom)
	d.Add("pmutation", p.PMutation)
	d.Add("plong", p.PLong)
	d.Add("pshort", p.PShort)
	d.Add("nhood", p.NHood)
	d.Add("genfrac", p.GenFrac)
	return d.Params()
}

// World returns the market state for read-only observers.
func (e *Engine) World() *world.World { return e.world }

// Agents returns the agent population for read-only observers.
func (e *Engine) Agents() []*agent.Agent { return e.agents }

// Period returns the number of trading periods simulated so far.
func (e *Engine) Period() int { return e.period }

// Rows returns the period results recorded by Run.
func (e *Engine) Rows() []domain.PeriodResult { return e.rows }
