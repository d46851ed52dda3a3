package repository

import (
	"context"

	"github.com/fastygo/incidencias/domain"
)

// HistorialRepository is the append-only ledger. There is deliberately no
// update or delete.
type HistorialRepository interface {
	Append(ctx context.Context, entry *domain.HistorialEstado) error
	// ListByIncidencia returns entries in chronological order; an empty tipo
	// returns both tracks.
	ListByIncidencia(ctx context.Context, incidenciaID string, tipo domain.TipoEstado) ([]domain.HistorialEstado, error)
}
