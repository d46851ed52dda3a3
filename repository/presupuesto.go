package repository

import (
	"context"

	"github.com/fastygo/incidencias/domain"
)

type PresupuestoRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Presupuesto, error)
	ListByCaso(ctx context.Context, casoID string) ([]domain.Presupuesto, error)
	ListByIncidencia(ctx context.Context, incidenciaID string) ([]domain.Presupuesto, error)
	// FindAprobado returns the authoritative approved offer of a case, or nil, nil.
	FindAprobado(ctx context.Context, casoID string) (*domain.Presupuesto, error)
	// FindPendiente returns the latest offer awaiting review, or nil, nil.
	FindPendiente(ctx context.Context, casoID string) (*domain.Presupuesto, error)
	Create(ctx context.Context, presupuesto *domain.Presupuesto) error
	// UpdateRevision stores the review outcome when the stored estado is still from.
	UpdateRevision(ctx context.Context, presupuesto *domain.Presupuesto, from domain.EstadoPresupuesto) error
}
