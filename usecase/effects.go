package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

// Effects runs the auxiliary writes that follow a committed transition.
// Failures are logged and handed to the outbox; they never reach the caller.
type Effects struct {
	comentarios repository.ComentarioRepository
	notifier    Notifier
	buffer      SideEffectBuffer
	logger      *zap.Logger
}

func NewEffects(comentarios repository.ComentarioRepository, notifier Notifier, buffer SideEffectBuffer, logger *zap.Logger) *Effects {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Effects{
		comentarios: comentarios,
		notifier:    notifier,
		buffer:      buffer,
		logger:      logger,
	}
}

// Comentar inserts a workflow comment.
func (e *Effects) Comentar(ctx context.Context, comentario *domain.Comentario) {
	if e == nil || comentario == nil || e.comentarios == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if comentario.CreatedAt.IsZero() {
		comentario.CreatedAt = time.Now().UTC()
	}

	err := e.comentarios.Create(ctx, comentario)
	if err == nil {
		return
	}
	e.logger.Warn("comentario insert failed, buffering",
		zap.String("incidencia_id", comentario.IncidenciaID),
		zap.String("ambito", string(comentario.Ambito)),
		zap.Error(err))
	if e.buffer == nil {
		return
	}
	if err := e.buffer.BufferComentario(ctx, comentario); err != nil {
		e.logger.Error("comentario lost", zap.String("comentario_id", comentario.ID), zap.Error(err))
	}
}

// Notificar emits a notification.
func (e *Effects) Notificar(ctx context.Context, n domain.Notificacion) {
	if e == nil || e.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if n.EmitidaEn.IsZero() {
		n.EmitidaEn = time.Now().UTC()
	}

	err := e.notifier.Notify(ctx, n)
	if err == nil {
		return
	}
	e.logger.Warn("notification failed, buffering",
		zap.String("tipo", n.Tipo),
		zap.String("incidencia_id", n.IncidenciaID),
		zap.Error(err))
	if e.buffer == nil {
		return
	}
	if err := e.buffer.BufferNotificacion(ctx, &n); err != nil {
		e.logger.Error("notification lost", zap.String("tipo", n.Tipo), zap.Error(err))
	}
}
