package domain

import "time"

// RunStatus represents the lifecycle of a simulation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusCancelled RunStatus = "CANCELLED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Run is the metadata of one simulation.
type Run struct {
	ID             string
	Seed           uint64
	NumAgents      int
	SpecialistType string
	WarmupPeriods  int
	Periods        int // periods requested
	Completed      int // periods actually simulated
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         RunStatus
}

// Param is one key=value line of the parameter dump.
type Param struct {
	Key   string
	Value string
}

// PeriodResult is one row of the per-period result stream.
type PeriodResult struct {
	Period         int
	Price          float64
	Dividend       float64
	Volume         float64
	RiskNeutral    float64
	BidTotal       float64
	OfferTotal     float64
	Iterations     int
	Converged      bool
	MeanForecast   float64
	GARuns         int // GA cycles run across all agents this period
	IllegalChanges int
}

// AgentSnapshot is the observable state of one agent at a period.
type AgentSnapshot struct {
	AgentID        int
	Period         int
	Cash           float64
	Position       float64
	Wealth         float64
	Profit         float64
	Forecast       float64
	ForecastError  float64
	Variance       float64
	ActiveRules    int
	GACount        int
	AvgSpecificity float64
}

// RunResult is what a finished simulation hands to reporters.
type RunResult struct {
	Run     Run
	Summary Summary
	Agents  []AgentSnapshot
	Last    PeriodResult
}
