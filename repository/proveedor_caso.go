package repository

import (
	"context"

	"github.com/fastygo/incidencias/domain"
)

type ProveedorCasoRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ProveedorCaso, error)
	// FindActivo returns nil, nil when the incidencia has no active case.
	FindActivo(ctx context.Context, incidenciaID string) (*domain.ProveedorCaso, error)
	// FindUltimo returns the most recently assigned case, or nil, nil.
	FindUltimo(ctx context.Context, incidenciaID string) (*domain.ProveedorCaso, error)
	ListByIncidencia(ctx context.Context, incidenciaID string) ([]domain.ProveedorCaso, error)
	// Create inserts a case. A second active case for the same incidencia
	// fails with domain.ErrConcurrentUpdate.
	Create(ctx context.Context, caso *domain.ProveedorCaso) error
	// Update writes every mutable field of an active case whose stored
	// estado_proveedor is still expected.
	Update(ctx context.Context, caso *domain.ProveedorCaso, expected domain.EstadoProveedor) error
}
