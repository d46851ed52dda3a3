package incidencia

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/usecase"
)

const (
	OrigenPresupuesto   = "presupuesto"
	OrigenImagen        = "resolucion_imagen"
	OrigenParteTrabajo  = "resolucion_parte_trabajo"
	OrigenJustificativo = "valoracion_justificativo"
	OrigenAdjunto       = "comentario_adjunto"
)

// Documento is a stored reference together with whether the blob is still there.
type Documento struct {
	Origen     string `json:"origen"`
	OrigenID   string `json:"origen_id"`
	CasoID     string `json:"caso_id,omitempty"`
	Referencia string `json:"referencia"`
	Nombre     string `json:"nombre,omitempty"`
	Disponible bool   `json:"disponible"`
}

// Documentos lists every document referenced by the incidencia and checks each
// one against blob storage. Providers only see documents of their own cases.
func (uc *UseCase) Documentos(ctx context.Context, actor domain.Actor, id string) ([]Documento, error) {
	if _, err := uc.Obtener(ctx, id); err != nil {
		return nil, err
	}
	casos, err := uc.casos.Historial(ctx, id)
	if err != nil {
		return nil, err
	}
	visibles := make(map[string]bool, len(casos))
	var docs []Documento
	for i := range casos {
		caso := &casos[i]
		if !actor.PuedeActuarSobre(caso) {
			continue
		}
		visibles[caso.ID] = true
		docs = appendRef(docs, OrigenImagen, caso.ID, caso.ID, caso.Resolucion.ImagenRef, "")
		docs = appendRef(docs, OrigenParteTrabajo, caso.ID, caso.ID, caso.Resolucion.ParteTrabajoRef, "")
		docs = appendRef(docs, OrigenJustificativo, caso.ID, caso.ID, caso.Valoracion.JustificativoRef, "")
	}

	presupuestos, err := usecase.Read(ctx, uc.policy, func(ctx context.Context) ([]domain.Presupuesto, error) {
		return uc.store.Presupuestos.ListByIncidencia(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	for _, p := range presupuestos {
		if visibles[p.ProveedorCasoID] {
			docs = appendRef(docs, OrigenPresupuesto, p.ID, p.ProveedorCasoID, p.DocumentoRef, "")
		}
	}

	comentarios, err := uc.Comentarios(ctx, actor, id, "")
	if err != nil {
		return nil, err
	}
	// Workflow comments repeat the document of the record they announce.
	listadas := make(map[string]bool, len(docs))
	for _, d := range docs {
		listadas[d.Referencia] = true
	}
	for _, c := range comentarios {
		casoID := ""
		if c.ProveedorCasoID != nil {
			casoID = *c.ProveedorCasoID
		}
		if actor.Rol == domain.RolProveedor && !visibles[casoID] {
			continue
		}
		for _, a := range c.Adjuntos {
			if listadas[a.Referencia] {
				continue
			}
			listadas[a.Referencia] = true
			docs = appendRef(docs, OrigenAdjunto, c.ID, casoID, a.Referencia, a.Nombre)
		}
	}

	for i := range docs {
		ok, err := uc.existe(ctx, docs[i].Referencia)
		if err != nil {
			return nil, err
		}
		docs[i].Disponible = ok
	}
	return docs, nil
}

func (uc *UseCase) existe(ctx context.Context, ref string) (bool, error) {
	if uc.blobs == nil {
		return false, domain.NewError(domain.ErrCodeInternal, "almacenamiento de documentos no configurado")
	}
	ok, err := uc.blobs.Exists(ctx, ref)
	if err == nil {
		return ok, nil
	}
	if errors.Is(err, usecase.ErrRefAjena) {
		uc.logger.Warn("document reference not issued by blob store", zap.String("ref", ref))
		return false, nil
	}
	if domain.IsDomainError(err, domain.ErrCodeTransient) {
		return false, err
	}
	return false, domain.WrapError(domain.ErrCodeTransient, "error al consultar el documento, inténtelo de nuevo", err)
}

func appendRef(docs []Documento, origen, origenID, casoID, ref, nombre string) []Documento {
	if ref == "" {
		return docs
	}
	return append(docs, Documento{Origen: origen, OrigenID: origenID, CasoID: casoID, Referencia: ref, Nombre: nombre})
}
