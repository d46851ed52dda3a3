package services

import (
	"context"
	"encoding/json"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/internal/infrastructure/buffer"
	"github.com/fastygo/incidencias/usecase"
)

// BufferBridge adapts the outbox processor to the use-case side-effect port.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferComentario(ctx context.Context, comentario *domain.Comentario) error {
	if b.processor == nil || comentario == nil {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(comentario)
	if err != nil {
		return err
	}
	item := buffer.Item{
		IncidenciaID: comentario.IncidenciaID,
		Entity:       buffer.EntityComentario,
		Operation:    buffer.OperationInsert,
		Data:         payload,
		Priority:     2,
	}
	if comentario.AutorID != nil {
		item.PersonaID = *comentario.AutorID
	}
	return b.processor.BufferOperation(ctx, item)
}

func (b *BufferBridge) BufferNotificacion(ctx context.Context, n *domain.Notificacion) error {
	if b.processor == nil || n == nil {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	item := buffer.Item{
		IncidenciaID: n.IncidenciaID,
		PersonaID:    n.ProveedorID,
		Entity:       buffer.EntityNotificacion,
		Operation:    buffer.OperationPublish,
		Data:         payload,
		Priority:     4,
	}
	return b.processor.BufferOperation(ctx, item)
}

var _ usecase.SideEffectBuffer = (*BufferBridge)(nil)
