package ports

import (
	"context"

	"github.com/alejandrodnm/sfasm/internal/domain"
)

// Storage persiste las corridas de simulación y sus resultados.
type Storage interface {
	// SaveRun inserta o actualiza la metadata de una corrida.
	SaveRun(ctx context.Context, run domain.Run) error

	// SaveParams guarda el volcado key=value de parámetros de la corrida.
	SaveParams(ctx context.Context, runID string, params []domain.Param) error

	// SavePeriods persiste un lote de filas por período (upsert por run+period).
	SavePeriods(ctx context.Context, runID string, rows []domain.PeriodResult) error

	// SaveAgentSnapshots persiste el estado observable de los agentes.
	SaveAgentSnapshots(ctx context.Context, runID string, snaps []domain.AgentSnapshot) error

	// GetRun devuelve la metadata de una corrida.
	GetRun(ctx context.Context, runID string) (domain.Run, error)

	// ListRuns devuelve las corridas más recientes primero.
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)

	// GetPeriods devuelve las filas de una corrida ordenadas por período.
	GetPeriods(ctx context.Context, runID string) ([]domain.PeriodResult, error)

	// GetParams devuelve el volcado de parámetros en orden de inserción.
	GetParams(ctx context.Context, runID string) ([]domain.Param, error)

	// GetAgentSnapshots devuelve los snapshots del último período guardado.
	GetAgentSnapshots(ctx context.Context, runID string) ([]domain.AgentSnapshot, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
