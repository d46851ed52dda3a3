package repository

import (
	"context"

	"github.com/fastygo/incidencias/domain"
)

type FiltroRepository interface {
	Get(ctx context.Context, personaID string) (*domain.VistaGuardada, error)
	Save(ctx context.Context, vista *domain.VistaGuardada) error
	Delete(ctx context.Context, personaID string) error
	Extend(ctx context.Context, personaID string, ttlSeconds int) error
}
