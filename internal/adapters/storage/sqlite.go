package storage

// sqlite.go — persistencia de corridas de simulación.
//
// Estrategia:
//   - `runs`: una fila por corrida, upsert al arrancar y al terminar.
//   - `run_params`: volcado key=value, reemplazado entero en cada SaveParams.
//   - `periods`: una fila por período, escrita en lotes (una tx por lote).
//   - `agent_snapshots`: estado de cada agente en los períodos muestreados.
//   - Al abrir, las corridas que quedaron en RUNNING hace más de staleAfter
//     se marcan FAILED (proceso muerto sin cerrar la corrida).

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/sfasm/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    seed            INTEGER  NOT NULL,
    num_agents      INTEGER  NOT NULL,
    specialist_type TEXT     NOT NULL,
    warmup_periods  INTEGER  NOT NULL DEFAULT 0,
    periods         INTEGER  NOT NULL DEFAULT 0,
    completed       INTEGER  NOT NULL DEFAULT 0,
    started_at      TEXT     NOT NULL,
    finished_at     TEXT,
    status          TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS run_params (
    run_id TEXT    NOT NULL,
    pos    INTEGER NOT NULL,
    key    TEXT    NOT NULL,
    value  TEXT    NOT NULL,
    PRIMARY KEY (run_id, pos)
);

CREATE TABLE IF NOT EXISTS periods (
    run_id          TEXT    NOT NULL,
    period          INTEGER NOT NULL,
    price           REAL    NOT NULL,
    dividend        REAL    NOT NULL,
    volume          REAL    NOT NULL DEFAULT 0,
    risk_neutral    REAL    NOT NULL DEFAULT 0,
    bid_total       REAL    NOT NULL DEFAULT 0,
    offer_total     REAL    NOT NULL DEFAULT 0,
    iterations      INTEGER NOT NULL DEFAULT 0,
    converged       INTEGER NOT NULL DEFAULT 0,
    mean_forecast   REAL    NOT NULL DEFAULT 0,
    ga_runs         INTEGER NOT NULL DEFAULT 0,
    illegal_changes INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, period)
);

CREATE TABLE IF NOT EXISTS agent_snapshots (
    run_id          TEXT    NOT NULL,
    agent_id        INTEGER NOT NULL,
    period          INTEGER NOT NULL,
    cash            REAL    NOT NULL,
    position        REAL    NOT NULL,
    wealth          REAL    NOT NULL,
    profit          REAL    NOT NULL DEFAULT 0,
    forecast        REAL    NOT NULL DEFAULT 0,
    forecast_error  REAL    NOT NULL DEFAULT 0,
    variance        REAL    NOT NULL DEFAULT 0,
    active_rules    INTEGER NOT NULL DEFAULT 0,
    ga_count        INTEGER NOT NULL DEFAULT 0,
    avg_specificity REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, agent_id, period)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

const (
	staleAfter = 24 * time.Hour
	// timeLayout has fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrRunNotFound is returned when a run ID has no stored metadata.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y
// aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.failStale(context.Background())
	return s, nil
}

// SaveRun hace upsert de la metadata de la corrida.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run domain.Run) error {
	var finished *string
	if run.FinishedAt != nil {
		f := run.FinishedAt.UTC().Format(timeLayout)
		finished = &f
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
			(id, seed, num_agents, specialist_type, warmup_periods, periods,
			 completed, started_at, finished_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed   = excluded.completed,
			finished_at = excluded.finished_at,
			status      = excluded.status
	`,
		run.ID, int64(run.Seed), run.NumAgents, run.SpecialistType, run.WarmupPeriods,
		run.Periods, run.Completed, run.StartedAt.UTC().Format(timeLayout), finished, string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: upsert %s: %w", run.ID, err)
	}
	return nil
}

// SaveParams reemplaza el volcado de parámetros de la corrida.
func (s *SQLiteStorage) SaveParams(ctx context.Context, runID string, params []domain.Param) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveParams: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_params WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("storage.SaveParams: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_params (run_id, pos, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveParams: prepare: %w", err)
	}
	defer stmt.Close()

	for i, p := range params {
		if _, err := stmt.ExecContext(ctx, runID, i, p.Key, p.Value); err != nil {
			return fmt.Errorf("storage.SaveParams: insert %s: %w", p.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveParams: commit: %w", err)
	}
	return nil
}

// SavePeriods hace upsert de un lote de períodos en una sola transacción.
func (s *SQLiteStorage) SavePeriods(ctx context.Context, runID string, rows []domain.PeriodResult) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SavePeriods: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO periods
			(run_id, period, price, dividend, volume, risk_neutral, bid_total,
			 offer_total, iterations, converged, mean_forecast, ga_runs, illegal_changes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, period) DO UPDATE SET
			price           = excluded.price,
			dividend        = excluded.dividend,
			volume          = excluded.volume,
			risk_neutral    = excluded.risk_neutral,
			bid_total       = excluded.bid_total,
			offer_total     = excluded.offer_total,
			iterations      = excluded.iterations,
			converged       = excluded.converged,
			mean_forecast   = excluded.mean_forecast,
			ga_runs         = excluded.ga_runs,
			illegal_changes = excluded.illegal_changes
	`)
	if err != nil {
		return fmt.Errorf("storage.SavePeriods: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			runID, r.Period, r.Price, r.Dividend, r.Volume, r.RiskNeutral,
			r.BidTotal, r.OfferTotal, r.Iterations, boolToInt(r.Converged),
			r.MeanForecast, r.GARuns, r.IllegalChanges,
		); err != nil {
			return fmt.Errorf("storage.SavePeriods: upsert period %d: %w", r.Period, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SavePeriods: commit: %w", err)
	}
	return nil
}

// SaveAgentSnapshots hace upsert de los snapshots dados.
func (s *SQLiteStorage) SaveAgentSnapshots(ctx context.Context, runID string, snaps []domain.AgentSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveAgentSnapshots: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_snapshots
			(run_id, agent_id, period, cash, position, wealth, profit, forecast,
			 forecast_error, variance, active_rules, ga_count, avg_specificity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, agent_id, period) DO UPDATE SET
			cash            = excluded.cash,
			position        = excluded.position,
			wealth          = excluded.wealth,
			profit          = excluded.profit,
			forecast        = excluded.forecast,
			forecast_error  = excluded.forecast_error,
			variance        = excluded.variance,
			active_rules    = excluded.active_rules,
			ga_count        = excluded.ga_count,
			avg_specificity = excluded.avg_specificity
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveAgentSnapshots: prepare: %w", err)
	}
	defer stmt.Close()

	for _, a := range snaps {
		if _, err := stmt.ExecContext(ctx,
			runID, a.AgentID, a.Period, a.Cash, a.Position, a.Wealth, a.Profit,
			a.Forecast, a.ForecastError, a.Variance, a.ActiveRules, a.GACount, a.AvgSpecificity,
		); err != nil {
			return fmt.Errorf("storage.SaveAgentSnapshots: upsert agent %d: %w", a.AgentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveAgentSnapshots: commit: %w", err)
	}
	return nil
}

const runColumns = `id, seed, num_agents, specialist_type, warmup_periods, periods,
	completed, started_at, finished_at, status`

// GetRun devuelve la metadata de la corrida o ErrRunNotFound.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("storage.GetRun: %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("storage.GetRun: scan: %w", err)
	}
	return run, nil
}

// ListRuns devuelve las corridas más recientes primero. limit <= 0 no limita.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListRuns: scan row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetPeriods devuelve los períodos de la corrida en orden.
func (s *SQLiteStorage) GetPeriods(ctx context.Context, runID string) ([]domain.PeriodResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, price, dividend, volume, risk_neutral, bid_total, offer_total,
		       iterations, converged, mean_forecast, ga_runs, illegal_changes
		FROM periods
		WHERE run_id = ?
		ORDER BY period
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetPeriods: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PeriodResult
	for rows.Next() {
		var r domain.PeriodResult
		var converged int
		if err := rows.Scan(
			&r.Period, &r.Price, &r.Dividend, &r.Volume, &r.RiskNeutral, &r.BidTotal,
			&r.OfferTotal, &r.Iterations, &converged, &r.MeanForecast, &r.GARuns, &r.IllegalChanges,
		); err != nil {
			return nil, fmt.Errorf("storage.GetPeriods: scan row: %w", err)
		}
		r.Converged = converged == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetParams devuelve el volcado de parámetros de la corrida.
func (s *SQLiteStorage) GetParams(ctx context.Context, runID string) ([]domain.Param, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM run_params WHERE run_id = ? ORDER BY pos`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetParams: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Param
	for rows.Next() {
		var p domain.Param
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("storage.GetParams: scan row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetAgentSnapshots devuelve los snapshots del último período guardado,
// ordenados por riqueza descendente.
func (s *SQLiteStorage) GetAgentSnapshots(ctx context.Context, runID string) ([]domain.AgentSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, period, cash, position, wealth, profit, forecast,
		       forecast_error, variance, active_rules, ga_count, avg_specificity
		FROM agent_snapshots
		WHERE run_id = ?
		  AND period = (SELECT MAX(period) FROM agent_snapshots WHERE run_id = ?)
		ORDER BY wealth DESC, agent_id
	`, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetAgentSnapshots: query: %w", err)
	}
	defer rows.Close()

	var out []domain.AgentSnapshot
	for rows.Next() {
		var a domain.AgentSnapshot
		if err := rows.Scan(
			&a.AgentID, &a.Period, &a.Cash, &a.Position, &a.Wealth, &a.Profit, &a.Forecast,
			&a.ForecastError, &a.Variance, &a.ActiveRules, &a.GACount, &a.AvgSpecificity,
		); err != nil {
			return nil, fmt.Errorf("storage.GetAgentSnapshots: scan row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (domain.Run, error) {
	var run domain.Run
	var seed int64
	var status string
	var started string
	var finished sql.NullString
	if err := sc.Scan(
		&run.ID, &seed, &run.NumAgents, &run.SpecialistType, &run.WarmupPeriods,
		&run.Periods, &run.Completed, &started, &finished, &status,
	); err != nil {
		return domain.Run{}, err
	}
	run.Seed = uint64(seed)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finished.String)
		run.FinishedAt = &t
	}
	run.Status = domain.RunStatus(status)
	return run, nil
}

// failStale marca como FAILED las corridas que siguen en RUNNING tras
// staleAfter: el proceso que las llevaba ya no existe.
func (s *SQLiteStorage) failStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-staleAfter).Format(timeLayout)
	s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE status = ? AND started_at < ?`,
		string(domain.RunStatusFailed), string(domain.RunStatusRunning), cutoff,
	)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
