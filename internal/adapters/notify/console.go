package notify

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/alejandrodnm/sfasm/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Reporter.
type Console struct {
	out       io.Writer
	agents    int // agentes a mostrar en el leaderboard, 0 = ninguno
	showEvery int // imprimir progreso cada N períodos
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(agents, showEvery int) *Console {
	return &Console{out: os.Stdout, agents: agents, showEvery: showEvery}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, agents, showEvery int) *Console {
	return &Console{out: w, agents: agents, showEvery: showEvery}
}

// PrintParams imprime el volcado key=value.
func (c *Console) PrintParams(params []domain.Param) {
	width := 0
	for _, p := range params {
		width = max(width, len(p.Key))
	}
	for _, p := range params {
		fmt.Fprintf(c.out, "%-*s = %s\n", width, p.Key, p.Value)
	}
}

// PrintProgress imprime una línea compacta cada showEvery períodos.
func (c *Console) PrintProgress(row domain.PeriodResult) {
	if c.showEvery <= 0 || row.Period%c.showEvery != 0 {
		return
	}
	conv := ""
	if !row.Converged {
		conv = " (no clear)"
	}
	fmt.Fprintf(c.out, "t=%-7d price=%9.3f div=%7.3f vol=%7.3f rn=%9.3f it=%d%s\n",
		row.Period, row.Price, row.Dividend, row.Volume, row.RiskNeutral, row.Iterations, conv)
}

// PrintSummary imprime el resumen de la corrida y, si se pidió, el
// leaderboard de agentes.
func (c *Console) PrintSummary(result domain.RunResult) {
	run := result.Run
	s := result.Summary

	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  RUN %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(c.out, "  seed=%d agents=%d specialist=%s periods=%d/%d\n",
		run.Seed, run.NumAgents, run.SpecialistType, run.Completed, run.Periods)
	fmt.Fprintf(c.out, "========================================================\n\n")

	if s.Periods == 0 {
		fmt.Fprintln(c.out, "  No periods simulated.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Mean price", fmt.Sprintf("%.3f", s.MeanPrice))
	table.Append("Stdev price", fmt.Sprintf("%.3f", s.StdPrice))
	table.Append("Min / max price", fmt.Sprintf("%.3f / %.3f", s.MinPrice, s.MaxPrice))
	table.Append("Mean dividend", fmt.Sprintf("%.4f", s.MeanDividend))
	table.Append("Mean volume", fmt.Sprintf("%.4f", s.MeanVolume))
	table.Append("Return volatility", fmt.Sprintf("%.5f", s.ReturnVolatility))
	table.Append("Deviation from RN price", fmt.Sprintf("%+.2f%%", s.MeanRNDeviation*100))
	table.Append("Specialist cleared", fmt.Sprintf("%.1f%%", s.ConvergenceRate*100))
	table.Append("GA runs", fmt.Sprintf("%d", s.TotalGARuns))
	table.Render()

	c.printAgents(result.Agents)
}

// printAgents imprime los agentes más ricos.
func (c *Console) printAgents(agents []domain.AgentSnapshot) {
	if c.agents <= 0 || len(agents) == 0 {
		return
	}

	ranked := make([]domain.AgentSnapshot, len(agents))
	copy(ranked, agents)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Wealth > ranked[j].Wealth })
	if len(ranked) > c.agents {
		ranked = ranked[:c.agents]
	}

	fmt.Fprintf(c.out, "\n  --- AGENTS (top %d by wealth) ---\n", len(ranked))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Agent", "Wealth", "Cash", "Position", "Profit", "Forecast", "FcErr", "Active", "GA", "Spec")
	for i, a := range ranked {
		table.Append(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d", a.AgentID),
			fmt.Sprintf("%.2f", a.Wealth),
			fmt.Sprintf("%.2f", a.Cash),
			fmt.Sprintf("%.3f", a.Position),
			fmt.Sprintf("%.4f", a.Profit),
			fmt.Sprintf("%.3f", a.Forecast),
			fmt.Sprintf("%+.3f", a.ForecastError),
			fmt.Sprintf("%d", a.ActiveRules),
			fmt.Sprintf("%d", a.GACount),
			fmt.Sprintf("%.2f", a.AvgSpecificity),
		)
	}
	table.Render()
}

// PrintRuns imprime la lista de corridas guardadas.
func (c *Console) PrintRuns(runs []domain.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "No stored runs.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Run", "Started", "Status", "Seed", "Agents", "Specialist", "Periods")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			string(r.Status),
			fmt.Sprintf("%d", r.Seed),
			fmt.Sprintf("%d", r.NumAgents),
			r.SpecialistType,
			fmt.Sprintf("%d/%d", r.Completed, r.Periods),
		)
	}
	table.Render()
}

// PrintPeriods imprime la serie (time, price, dividend, volume) de una
// corrida guardada, una fila de cada `every`.
func (c *Console) PrintPeriods(rows []domain.PeriodResult, every int) {
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "No periods stored for this run.")
		return
	}
	every = max(every, 1)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%8s %12s %10s %10s\n", "time", "price", "dividend", "volume")
	for i, r := range rows {
		if i%every != 0 && i != len(rows)-1 {
			continue
		}
		fmt.Fprintf(&sb, "%8d %12.4f %10.4f %10.4f\n", r.Period, r.Price, r.Dividend, r.Volume)
	}
	fmt.Fprint(c.out, sb.String())
}
