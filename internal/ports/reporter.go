package ports

import "github.com/alejandrodnm/sfasm/internal/domain"

// Reporter presenta el progreso y los resultados de una corrida al usuario.
type Reporter interface {
	// PrintParams imprime el volcado key=value de parámetros.
	PrintParams(params []domain.Param)

	// PrintProgress imprime una línea compacta para un período.
	PrintProgress(row domain.PeriodResult)

	// PrintSummary imprime las tablas de resumen y de agentes.
	PrintSummary(result domain.RunResult)
}
