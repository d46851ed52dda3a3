// Package vista keeps the per-persona list view state (filters, paging)
// between sessions.
package vista

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

type UseCase struct {
	filtros repository.FiltroRepository
	ttl     time.Duration
	logger  *zap.Logger
}

func New(filtros repository.FiltroRepository, ttl time.Duration, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &UseCase{
		filtros: filtros,
		ttl:     ttl,
		logger:  logger,
	}
}

// Guardar stores filtro as the actor's view. Providers cannot widen the
// proveedor filter beyond themselves.
func (uc *UseCase) Guardar(ctx context.Context, actor domain.Actor, filtro domain.FiltroIncidencias) (*domain.VistaGuardada, error) {
	if uc.filtros == nil {
		return nil, domain.NewError(domain.ErrCodeTransient, "almacenamiento de vistas no disponible")
	}
	if actor.IsSystem() {
		return nil, domain.ErrUnauthorized
	}
	if filtro.EstadoCliente != "" && !filtro.EstadoCliente.Valid() {
		return nil, domain.Validationf("estado_cliente %q no válido", filtro.EstadoCliente)
	}
	if filtro.EstadoProveedor != "" && !filtro.EstadoProveedor.Valid() {
		return nil, domain.Validationf("estado_proveedor %q no válido", filtro.EstadoProveedor)
	}
	if filtro.Limit < 0 || filtro.Offset < 0 {
		return nil, domain.Validationf("limit y offset no pueden ser negativos")
	}
	if actor.Rol == domain.RolProveedor {
		filtro.ProveedorID = actor.PersonaID
	}

	v := &domain.VistaGuardada{
		PersonaID: actor.PersonaID,
		Filtro:    filtro,
		ExpiresAt: time.Now().UTC().Add(uc.ttl),
	}
	if err := uc.filtros.Save(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Obtener returns the stored view and drops it when it has expired.
func (uc *UseCase) Obtener(ctx context.Context, actor domain.Actor) (*domain.VistaGuardada, error) {
	if uc.filtros == nil {
		return nil, domain.ErrFiltroNotFound
	}
	v, err := uc.filtros.Get(ctx, actor.PersonaID)
	if err != nil {
		return nil, err
	}
	if v.IsExpired(time.Now()) {
		if err := uc.filtros.Delete(ctx, actor.PersonaID); err != nil {
			uc.logger.Warn("failed to drop expired view", zap.String("persona_id", actor.PersonaID), zap.Error(err))
		}
		return nil, domain.ErrFiltroNotFound
	}
	return v, nil
}

// Renovar pushes the expiry of the stored view forward.
func (uc *UseCase) Renovar(ctx context.Context, actor domain.Actor) (*domain.VistaGuardada, error) {
	v, err := uc.Obtener(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := uc.filtros.Extend(ctx, actor.PersonaID, int(uc.ttl.Seconds())); err != nil {
		return nil, err
	}
	v.ExpiresAt = time.Now().UTC().Add(uc.ttl)
	return v, nil
}

func (uc *UseCase) Borrar(ctx context.Context, actor domain.Actor) error {
	if uc.filtros == nil {
		return nil
	}
	return uc.filtros.Delete(ctx, actor.PersonaID)
}
