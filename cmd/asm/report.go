package main

// report.go — lectura de corridas guardadas (-runs, -show).

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/sfasm/internal/adapters/notify"
	"github.com/alejandrodnm/sfasm/internal/domain"
	"github.com/alejandrodnm/sfasm/internal/ports"
)

const listLimit = 50

func printRuns(ctx context.Context, store ports.Storage, console *notify.Console) error {
	runs, err := store.ListRuns(ctx, listLimit)
	if err != nil {
		return fmt.Errorf("printRuns: %w", err)
	}
	console.PrintRuns(runs)
	return nil
}

// printRun imprime los parámetros, la serie de precios y el resumen de una
// corrida guardada, con los agentes de la última foto.
func printRun(ctx context.Context, store ports.Storage, console *notify.Console, runID string, every int) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("printRun: %w", err)
	}
	params, err := store.GetParams(ctx, runID)
	if err != nil {
		return fmt.Errorf("printRun: %w", err)
	}
	rows, err := store.GetPeriods(ctx, runID)
	if err != nil {
		return fmt.Errorf("printRun: %w", err)
	}
	agents, err := store.GetAgentSnapshots(ctx, runID)
	if err != nil {
		return fmt.Errorf("printRun: %w", err)
	}

	console.PrintParams(params)
	console.PrintPeriods(rows, every)

	result := domain.RunResult{
		Run:     run,
		Summary: domain.Summarize(rows),
		Agents:  agents,
	}
	if len(rows) > 0 {
		result.Last = rows[len(rows)-1]
	}
	console.PrintSummary(result)
	return nil
}
