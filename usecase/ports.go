package usecase

import (
	"context"
	"errors"

	"github.com/fastygo/incidencias/domain"
)

// ErrRefAjena is returned by a BlobStore for references it did not issue.
var ErrRefAjena = errors.New("blob: invalid reference")

// BlobStore keeps uploaded documents and images. The core only needs a stable
// reference back.
type BlobStore interface {
	Store(ctx context.Context, path, contentType string, data []byte) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

// Notifier dispatches actor-visible events. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notificacion) error
}

// SideEffectBuffer abstracts the outbox so use cases stay storage-agnostic.
type SideEffectBuffer interface {
	BufferComentario(ctx context.Context, comentario *domain.Comentario) error
	BufferNotificacion(ctx context.Context, notificacion *domain.Notificacion) error
}
