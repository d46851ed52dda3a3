package repository

import (
	"context"

	"github.com/fastygo/incidencias/domain"
)

type ComentarioRepository interface {
	Create(ctx context.Context, comentario *domain.Comentario) error
	// ListByIncidencia returns comments oldest first; an empty ambito returns both scopes.
	ListByIncidencia(ctx context.Context, incidenciaID string, ambito domain.Ambito) ([]domain.Comentario, error)
}
