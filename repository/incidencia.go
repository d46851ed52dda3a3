package repository

import (
	"context"

	"github.com/fastygo/incidencias/domain"
)

// IncidenciaRepository persists incidencias. State changes only go through the
// guarded UpdateEstado.
type IncidenciaRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Incidencia, error)
	GetByNumSolicitud(ctx context.Context, numSolicitud string) (*domain.Incidencia, error)
	List(ctx context.Context, filter domain.FiltroIncidencias) ([]domain.Incidencia, error)
	// Create assigns ID and NumSolicitud when empty.
	Create(ctx context.Context, incidencia *domain.Incidencia) (*domain.Incidencia, error)
	// UpdateEstado moves estado_cliente from -> to and fails with
	// domain.ErrConcurrentUpdate when the stored state is no longer from.
	UpdateEstado(ctx context.Context, id string, from, to domain.EstadoCliente) error
}
