package notify_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/sfasm/internal/adapters/notify"
	"github.com/alejandrodnm/sfasm/internal/domain"
	"github.com/stretchr/testify/assert"
)

func makeResult() domain.RunResult {
	return domain.RunResult{
		Run: domain.Run{
			ID:             "abc-123",
			Seed:           7,
			NumAgents:      3,
			SpecialistType: "slope",
			Periods:        100,
			Completed:      100,
			Status:         domain.RunStatusCompleted,
		},
		Summary: domain.Summary{
			Periods:         100,
			MeanPrice:       101.25,
			StdPrice:        3.5,
			MinPrice:        95,
			MaxPrice:        108,
			MeanVolume:      1.75,
			ConvergenceRate: 0.9,
			TotalGARuns:     12,
		},
		Agents: []domain.AgentSnapshot{
			{AgentID: 0, Wealth: 20100, Cash: 20000, Position: 1},
			{AgentID: 1, Wealth: 21500.5, Cash: 21000, Position: 5},
			{AgentID: 2, Wealth: 19000, Cash: 19200, Position: -2},
		},
	}
}

func TestConsole_PrintParams_Aligned(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, 0, 0)

	c.PrintParams([]domain.Param{{Key: "numagents", Value: "25"}, {Key: "eta", Value: "0.0005"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"numagents = 25", "eta       = 0.0005"}, lines)
}

func TestConsole_PrintProgress_Throttled(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, 0, 10)

	for p := 1; p <= 25; p++ {
		c.PrintProgress(domain.PeriodResult{Period: p, Price: 100, Converged: p != 20})
	}

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "t=10")
	assert.Contains(t, out, "t=20")
	assert.Contains(t, out, "(no clear)")
}

func TestConsole_PrintProgress_Disabled(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, 0, 0)
	c.PrintProgress(domain.PeriodResult{Period: 10})
	assert.Empty(t, buf.String())
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, 2, 0)

	c.PrintSummary(makeResult())

	out := buf.String()
	assert.Contains(t, out, "abc-123")
	assert.Contains(t, out, "101.250")
	assert.Contains(t, out, "90.0%")
	assert.Contains(t, out, "21500.50")
	assert.Contains(t, out, "20100.00")
	assert.NotContains(t, out, "19000.00", "only the top 2 agents are shown")
	assert.Less(t, strings.Index(out, "21500.50"), strings.Index(out, "20100.00"))
}

func TestConsole_PrintSummary_NoPeriods(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, 5, 0)

	r := makeResult()
	r.Summary = domain.Summary{}
	c.PrintSummary(r)
	assert.Contains(t, buf.String(), "No periods simulated")
}

func TestConsole_PrintRuns(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, 0, 0)

	c.PrintRuns(nil)
	assert.Contains(t, buf.String(), "No stored runs")

	buf.Reset()
	c.PrintRuns([]domain.Run{{
		ID: "r-1", StartedAt: time.Now(), Status: domain.RunStatusCancelled,
		Seed: 3, NumAgents: 25, SpecialistType: "eta", Periods: 500, Completed: 120,
	}})
	out := buf.String()
	assert.Contains(t, out, "r-1")
	assert.Contains(t, out, "CANCELLED")
	assert.Contains(t, out, "120/500")
}

func TestConsole_PrintPeriods_EveryAndLast(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, 0, 0)

	rows := make([]domain.PeriodResult, 7)
	for i := range rows {
		rows[i] = domain.PeriodResult{Period: i + 1, Price: 100 + float64(i)}
	}
	c.PrintPeriods(rows, 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// header + periods 1, 4, 7
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[3], "106.0000")
}
