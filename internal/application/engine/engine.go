package engine

import (
	"fmt"
	"strconv"

	"github.com/alejandrodnm/sfasm/internal/domain"
)

// ParamDump acumula el volcado key=value de parámetros en orden de inserción.
type ParamDump struct {
	params []domain.Param
}

// Add formatea v y lo añade bajo key. Los float usan la representación
// más corta que preserva el valor.
func (d *ParamDump) Add(key string, v any) {
	var s string
	switch x := v.(type) {
	case float64:
		s = strconv.FormatFloat(x, 'g', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	d.params = append(d.params, domain.Param{Key: key, Value: s})
}

// Params devuelve una copia del volcado.
func (d *ParamDump) Params() []domain.Param {
	out := make([]domain.Param, len(d.params))
	copy(out, d.params)
	return out
}
