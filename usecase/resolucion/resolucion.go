// Package resolucion covers the end of a provider case: resolving the work,
// scheduling visits and closing the incidencia together with its case.
package resolucion

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/historial"
)

const (
	NotifResolucion = "caso_resuelto"
	NotifVisita     = "visita_programada"
	NotifCierre     = "incidencia_cerrada"
)

const prefixResoluciones = "resoluciones"

type UseCase struct {
	store    repository.Store
	ledger   *historial.Ledger
	effects  *usecase.Effects
	blobs    usecase.BlobStore
	politica domain.PoliticaCierre
	logger   *zap.Logger
	now      func() time.Time
}

func New(store repository.Store, ledger *historial.Ledger, effects *usecase.Effects, blobs usecase.BlobStore, politica domain.PoliticaCierre, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		store:    store,
		ledger:   ledger,
		effects:  effects,
		blobs:    blobs,
		politica: politica,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type ResolverInput struct {
	CasoID              string          `json:"caso_id"`
	SolucionAplicada    string          `json:"solucion_aplicada"`
	Imagen              *domain.Archivo `json:"imagen,omitempty"`
	ParteTrabajo        *domain.Archivo `json:"parte_trabajo,omitempty"`
	TieneOfertaAprobada bool            `json:"tiene_oferta_aprobada"`
}

// ResolverIncidencia marks the work as done. TieneOfertaAprobada is taken as
// given; without an approved offer the valuation step may be skipped later.
func (uc *UseCase) ResolverIncidencia(ctx context.Context, actor domain.Actor, in ResolverInput) (*domain.ProveedorCaso, error) {
	solucion := strings.TrimSpace(in.SolucionAplicada)
	if solucion == "" {
		return nil, domain.Validationf("la solución aplicada es obligatoria")
	}

	caso, err := usecase.CasoActivo(ctx, uc.store.Casos, in.CasoID, actor)
	if err != nil {
		return nil, err
	}
	from := caso.EstadoProveedor
	if from != domain.ProveedorAsignada && from != domain.ProveedorOfertada {
		return nil, domain.Preconditionf("solo se puede resolver desde Asignada u Ofertada (estado %s)", from)
	}

	var adjuntos []domain.Adjunto
	prefix := prefixResoluciones + "/" + caso.ID
	var imagen, parte domain.Adjunto
	if !in.Imagen.Empty() {
		if imagen, err = usecase.GuardarArchivo(ctx, uc.blobs, prefix, in.Imagen); err != nil {
			return nil, err
		}
		adjuntos = append(adjuntos, imagen)
	}
	if !in.ParteTrabajo.Empty() {
		if parte, err = usecase.GuardarArchivo(ctx, uc.blobs, prefix, in.ParteTrabajo); err != nil {
			usecase.Compensar(ctx, uc.blobs, uc.logger, adjuntos...)
			return nil, err
		}
		adjuntos = append(adjuntos, parte)
	}

	err = usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		actual, err := usecase.CasoActivo(ctx, uc.store.Casos, caso.ID, actor)
		if err != nil {
			return err
		}
		if actual.EstadoProveedor != from {
			return domain.ErrConcurrentUpdate
		}
		if err := domain.ValidarTransicionProveedor(from, domain.ProveedorResuelta, domain.ViaAvance); err != nil {
			return err
		}

		ts := uc.now()
		actual.EstadoProveedor = domain.ProveedorResuelta
		actual.Resolucion = domain.Resolucion{
			SolucionAplicada:   solucion,
			ImagenRef:          imagen.Referencia,
			ParteTrabajoRef:    parte.Referencia,
			ResueltoEn:         &ts,
			ValoracionOmitible: !in.TieneOfertaAprobada,
		}
		if err := uc.store.Casos.Update(ctx, actual, from); err != nil {
			return err
		}
		caso = actual

		_, err = uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
			IncidenciaID: caso.IncidenciaID,
			CasoID:       caso.ID,
			Anterior:     string(from),
			Nuevo:        string(domain.ProveedorResuelta),
			Actor:        actor,
			Metadatos: domain.Metadatos{
				"accion":                "resolver",
				"tiene_oferta_aprobada": in.TieneOfertaAprobada,
				"valoracion_omitible":   !in.TieneOfertaAprobada,
			},
		})
		return err
	})
	if err != nil {
		usecase.Compensar(ctx, uc.blobs, uc.logger, adjuntos...)
		return nil, err
	}

	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, caso, caso.IncidenciaID, domain.AmbitoProveedor,
		"Incidencia resuelta: "+solucion, map[string]string{"solucion_aplicada": solucion}, adjuntos...))
	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifResolucion, caso, "El proveedor ha resuelto la incidencia", nil))
	return caso, nil
}

type VisitaInput struct {
	CasoID string               `json:"caso_id"`
	Fecha  string               `json:"fecha"`
	Franja domain.FranjaHoraria `json:"franja"`
}

// CalendarizarVisita stores a visit slot on the case without changing its
// state and returns the rendered summary.
func (uc *UseCase) CalendarizarVisita(ctx context.Context, actor domain.Actor, in VisitaInput) (string, error) {
	fecha, err := usecase.ParseFecha("fecha", in.Fecha)
	if err != nil {
		return "", err
	}
	if fecha == nil {
		return "", domain.Validationf("la fecha de la visita es obligatoria")
	}
	franja := domain.FranjaHoraria(strings.ToLower(strings.TrimSpace(string(in.Franja))))
	if franja == "manana" {
		franja = domain.FranjaManana
	}
	if !franja.Valid() {
		return "", domain.Validationf("franja debe ser mañana o tarde")
	}
	visita := domain.Visita{Fecha: *fecha, Franja: franja}

	var caso *domain.ProveedorCaso
	err = usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		var err error
		caso, err = usecase.CasoActivo(ctx, uc.store.Casos, in.CasoID, actor)
		if err != nil {
			return err
		}
		if caso.IsTerminal() {
			return domain.Preconditionf("el caso está %s", caso.EstadoProveedor)
		}
		caso.Visita = &visita
		return uc.store.Casos.Update(ctx, caso, caso.EstadoProveedor)
	})
	if err != nil {
		return "", err
	}

	resumen := visita.Resumen()
	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, caso, caso.IncidenciaID, domain.AmbitoProveedor, resumen,
		map[string]string{"fecha": visita.Fecha.Format(usecase.FechaLayout), "franja": string(franja)}))
	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifVisita, caso, resumen, nil))
	return resumen, nil
}

type CerrarInput struct {
	IncidenciaID string `json:"incidencia_id"`
	Motivo       string `json:"motivo,omitempty"`
	Forzar       bool   `json:"forzar,omitempty"`
}

// Cierre is the outcome of closing an incidencia.
type Cierre struct {
	Incidencia    *domain.Incidencia    `json:"incidencia"`
	Caso          *domain.ProveedorCaso `json:"caso,omitempty"`
	TransaccionID string                `json:"transaccion_id"`
	Manual        bool                  `json:"manual"`
}

// CerrarIncidencia closes the client track and the active provider case in
// one transaction. Without an active case the closure is manual.
func (uc *UseCase) CerrarIncidencia(ctx context.Context, actor domain.Actor, in CerrarInput) (*Cierre, error) {
	if strings.TrimSpace(in.IncidenciaID) == "" {
		return nil, domain.Validationf("incidencia_id es obligatorio")
	}
	motivo := strings.TrimSpace(in.Motivo)
	if motivo == "" {
		motivo = domain.MotivoCierrePorDefecto
	}

	out := &Cierre{TransaccionID: uuid.NewString()}
	err := usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		inc, err := uc.store.Incidencias.GetByID(ctx, in.IncidenciaID)
		if err != nil {
			return err
		}
		if err := domain.ValidarTransicionCliente(inc.EstadoCliente, domain.ClienteCerrada); err != nil {
			return err
		}
		caso, err := uc.store.Casos.FindActivo(ctx, inc.ID)
		if err != nil {
			return err
		}
		if caso != nil && !actor.PuedeActuarSobre(caso) {
			return domain.ErrForbidden
		}
		meta := domain.Metadatos{"accion": "cerrar", "transaccion_id": out.TransaccionID}

		if caso != nil && caso.EstadoProveedor != domain.ProveedorCerrada {
			from := caso.EstadoProveedor
			if err := uc.puedeCerrarCaso(caso, in.Forzar); err != nil {
				return err
			}
			if err := domain.ValidarTransicionProveedor(from, domain.ProveedorCerrada, domain.ViaAvance); err != nil {
				return err
			}
			caso.EstadoProveedor = domain.ProveedorCerrada
			if err := uc.store.Casos.Update(ctx, caso, from); err != nil {
				return err
			}
			casoMeta := domain.Metadatos{"accion": "cerrar", "transaccion_id": out.TransaccionID, "forzado": in.Forzar}
			if _, err := uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
				IncidenciaID: inc.ID,
				CasoID:       caso.ID,
				Anterior:     string(from),
				Nuevo:        string(domain.ProveedorCerrada),
				Actor:        actor,
				Motivo:       motivo,
				Metadatos:    casoMeta,
			}); err != nil {
				return err
			}
		}
		if caso == nil {
			out.Manual = true
			meta["cierre_manual"] = true
		}
		if err := domain.PuedeCerrarCliente(caso); err != nil {
			return err
		}

		if err := uc.store.Incidencias.UpdateEstado(ctx, inc.ID, inc.EstadoCliente, domain.ClienteCerrada); err != nil {
			return err
		}
		if _, err := uc.ledger.RegistrarCliente(ctx, historial.Transicion{
			IncidenciaID: inc.ID,
			Anterior:     string(inc.EstadoCliente),
			Nuevo:        string(domain.ClienteCerrada),
			Actor:        actor,
			Motivo:       motivo,
			Metadatos:    meta,
		}); err != nil {
			return err
		}

		inc.EstadoCliente = domain.ClienteCerrada
		out.Incidencia = inc
		out.Caso = caso
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("incidencia cerrada",
		zap.String("incidencia_id", out.Incidencia.ID),
		zap.String("transaccion_id", out.TransaccionID),
		zap.Bool("manual", out.Manual))

	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, nil, out.Incidencia.ID, domain.AmbitoCliente,
		"Incidencia cerrada: "+motivo, map[string]string{"num_solicitud": out.Incidencia.NumSolicitud}))
	if out.Caso != nil {
		n := usecase.NotificacionCaso(NotifCierre, out.Caso, "La incidencia ha sido cerrada", map[string]string{"motivo": motivo})
		n.NumSolicitud = out.Incidencia.NumSolicitud
		uc.effects.Notificar(ctx, n)
	}
	return out, nil
}

func (uc *UseCase) puedeCerrarCaso(caso *domain.ProveedorCaso, forzar bool) error {
	switch caso.EstadoProveedor {
	case domain.ProveedorValorada:
		return nil
	case domain.ProveedorResuelta:
		if !uc.politica.CierreSinValoracion {
			return domain.Preconditionf("el caso está Resuelta y requiere valoración económica antes del cierre")
		}
		if !caso.Resolucion.ValoracionOmitible {
			return domain.Preconditionf("el caso tiene una oferta aprobada y requiere valoración económica antes del cierre")
		}
		return nil
	case domain.ProveedorOfertada:
		if !forzar {
			return domain.Preconditionf("el caso está Ofertada; use forzar para cerrar sin resolución")
		}
		return nil
	}
	return domain.Preconditionf("el caso de proveedor está %s; la incidencia no puede cerrarse", caso.EstadoProveedor)
}
