package usecase

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
)

// WriteTimeout bounds a detached write transaction.
const WriteTimeout = 30 * time.Second

// Write runs fn inside one transaction. Once writing starts the transaction is
// detached from caller cancellation so it either commits or rolls back whole.
func Write(ctx context.Context, tx repository.Transactor, fn func(ctx context.Context) error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), WriteTimeout)
	defer cancel()
	return tx.WithinTx(wctx, fn)
}

// CasoActivo loads a case that can still be acted upon by actor.
func CasoActivo(ctx context.Context, casos repository.ProveedorCasoRepository, id string, actor domain.Actor) (*domain.ProveedorCaso, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Validationf("caso_id es obligatorio")
	}
	caso, err := casos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.PuedeActuarSobre(caso) {
		return nil, domain.ErrForbidden
	}
	if !caso.Activo {
		return nil, domain.Preconditionf("el caso de proveedor no está activo")
	}
	return caso, nil
}

// RequireMotivo trims motivo and rejects it when blank.
func RequireMotivo(motivo string) (string, error) {
	motivo = strings.TrimSpace(motivo)
	if motivo == "" {
		return "", domain.Validationf("el motivo es obligatorio")
	}
	return motivo, nil
}

// GuardarArchivo uploads a document under prefix and returns its attachment
// metadata.
func GuardarArchivo(ctx context.Context, blobs BlobStore, prefix string, archivo *domain.Archivo) (domain.Adjunto, error) {
	if archivo.Empty() {
		return domain.Adjunto{}, domain.Validationf("el archivo está vacío")
	}
	if blobs == nil {
		return domain.Adjunto{}, domain.NewError(domain.ErrCodeInternal, "almacenamiento de documentos no configurado")
	}
	nombre := sanitizeNombre(archivo.Nombre)
	key := path.Join(prefix, uuid.NewString()+"-"+nombre)

	ref, err := blobs.Store(ctx, key, archivo.ContentType, archivo.Contenido)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeTransient) {
			return domain.Adjunto{}, err
		}
		return domain.Adjunto{}, domain.WrapError(domain.ErrCodeTransient, "error al guardar el documento, inténtelo de nuevo", err)
	}
	return domain.Adjunto{
		Referencia:  ref,
		Nombre:      nombre,
		ContentType: archivo.ContentType,
		Tamano:      int64(len(archivo.Contenido)),
	}, nil
}

// Compensar removes blobs uploaded for a write that did not commit.
func Compensar(ctx context.Context, blobs BlobStore, logger *zap.Logger, adjuntos ...domain.Adjunto) {
	if blobs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, a := range adjuntos {
		if a.Referencia == "" {
			continue
		}
		if err := blobs.Delete(ctx, a.Referencia); err != nil && logger != nil {
			logger.Error("blob compensation failed", zap.String("ref", a.Referencia), zap.Error(err))
		}
	}
}

// ComentarioAccion builds the summary comment a workflow action leaves behind.
func ComentarioAccion(actor domain.Actor, caso *domain.ProveedorCaso, incidenciaID string, ambito domain.Ambito, texto string, resumen map[string]string, adjuntos ...domain.Adjunto) *domain.Comentario {
	c := &domain.Comentario{
		ID:           uuid.NewString(),
		IncidenciaID: incidenciaID,
		Ambito:       ambito,
		AutorID:      actor.PersonaRef(),
		AutorEmail:   actor.Email,
		AutorRol:     actor.Rol,
		Texto:        texto,
		Resumen:      resumen,
	}
	if caso != nil {
		c.ProveedorCasoID = domain.StrPtr(caso.ID)
		if c.IncidenciaID == "" {
			c.IncidenciaID = caso.IncidenciaID
		}
	}
	for _, a := range adjuntos {
		if a.Referencia != "" {
			c.Adjuntos = append(c.Adjuntos, a)
		}
	}
	return c
}

// NotificacionCaso builds a notification about a provider case.
func NotificacionCaso(tipo string, caso *domain.ProveedorCaso, mensaje string, datos map[string]string) domain.Notificacion {
	n := domain.Notificacion{
		Tipo:    tipo,
		Mensaje: mensaje,
		Datos:   datos,
	}
	if caso != nil {
		n.IncidenciaID = caso.IncidenciaID
		n.CasoID = caso.ID
		n.ProveedorID = caso.ProveedorID
	}
	return n
}

func sanitizeNombre(nombre string) string {
	nombre = strings.TrimSpace(path.Base(strings.ReplaceAll(nombre, "\\", "/")))
	if nombre == "" || nombre == "." || nombre == "/" {
		return "documento"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20, r == '/', r == ':', r == '?', r == '#', r == '%':
			return -1
		}
		return r
	}, nombre)
}

// FechaLayout is the date format accepted for calendar fields.
const FechaLayout = "2006-01-02"

// ParseFecha parses an optional date. Blank input returns nil.
func ParseFecha(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(FechaLayout, raw)
	if err != nil {
		return nil, domain.Validationf("%s debe tener el formato %s", field, FechaLayout)
	}
	return &t, nil
}
