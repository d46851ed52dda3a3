// Package proveedorcaso manages provider assignments: assignment, anulación,
// reassignment and pausing of the provider track.
package proveedorcaso

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/historial"
)

const (
	NotifAsignacion   = "caso_asignado"
	NotifAnulacion    = "asignacion_anulada"
	NotifReasignacion = "proveedor_reasignado"
	NotifPausa        = "caso_en_espera"
	NotifReanudacion  = "caso_reanudado"
)

type UseCase struct {
	store   repository.Store
	ledger  *historial.Ledger
	effects *usecase.Effects
	policy  usecase.ReadPolicy
	logger  *zap.Logger
	now     func() time.Time
}

func New(store repository.Store, ledger *historial.Ledger, effects *usecase.Effects, policy usecase.ReadPolicy, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		store:   store,
		ledger:  ledger,
		effects: effects,
		policy:  policy,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type AsignarInput struct {
	IncidenciaID string `json:"incidencia_id"`
	ProveedorID  string `json:"proveedor_id"`
	Prioridad    int    `json:"prioridad"`
}

// Asignar creates the first active case of an incidencia, or a new one once
// the latest case is inactive or anulada.
func (uc *UseCase) Asignar(ctx context.Context, actor domain.Actor, in AsignarInput) (*domain.ProveedorCaso, error) {
	caso, err := uc.asignar(ctx, actor, in, false)
	if err != nil {
		return nil, err
	}
	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifAsignacion, caso, "Se le ha asignado una incidencia", nil))
	return caso, nil
}

// ReasignarProveedor replaces an anulada case with a new active one for the
// given provider. The swap happens in one transaction.
func (uc *UseCase) ReasignarProveedor(ctx context.Context, actor domain.Actor, in AsignarInput) (*domain.ProveedorCaso, error) {
	caso, err := uc.asignar(ctx, actor, in, true)
	if err != nil {
		return nil, err
	}
	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifReasignacion, caso, "Se le ha reasignado una incidencia", nil))
	return caso, nil
}

func (uc *UseCase) asignar(ctx context.Context, actor domain.Actor, in AsignarInput, reasignacion bool) (*domain.ProveedorCaso, error) {
	in.IncidenciaID = strings.TrimSpace(in.IncidenciaID)
	in.ProveedorID = strings.TrimSpace(in.ProveedorID)
	if in.IncidenciaID == "" || in.ProveedorID == "" {
		return nil, domain.Validationf("incidencia_id y proveedor_id son obligatorios")
	}

	var nuevo *domain.ProveedorCaso
	err := usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		inc, err := uc.store.Incidencias.GetByID(ctx, in.IncidenciaID)
		if err != nil {
			return err
		}
		if inc.IsTerminal() {
			return domain.Preconditionf("la incidencia está %s", inc.EstadoCliente)
		}

		ultimo, err := uc.store.Casos.FindUltimo(ctx, in.IncidenciaID)
		if err != nil {
			return err
		}
		meta := domain.Metadatos{"accion": "asignar", "proveedor_id": in.ProveedorID}

		switch {
		case ultimo == nil && reasignacion:
			return domain.Preconditionf("la incidencia no tiene una asignación previa que reasignar")
		case ultimo != nil && reasignacion && ultimo.EstadoProveedor != domain.ProveedorAnulada:
			return domain.Preconditionf("solo se puede reasignar cuando la asignación actual está Anulada (estado %s)", ultimo.EstadoProveedor)
		case ultimo != nil && ultimo.Activo && ultimo.EstadoProveedor != domain.ProveedorAnulada:
			return domain.Preconditionf("la incidencia ya tiene un caso de proveedor activo en estado %s", ultimo.EstadoProveedor)
		}

		if ultimo != nil {
			if reasignacion {
				meta["accion"] = "reasignar"
			}
			meta["caso_anterior_id"] = ultimo.ID
			meta["proveedor_anterior_id"] = ultimo.ProveedorID
			if ultimo.Activo {
				ultimo.Activo = false
				if err := uc.store.Casos.Update(ctx, ultimo, ultimo.EstadoProveedor); err != nil {
					return err
				}
			}
		}

		nuevo = &domain.ProveedorCaso{
			IncidenciaID:    in.IncidenciaID,
			ProveedorID:     in.ProveedorID,
			EstadoProveedor: domain.ProveedorAsignada,
			Activo:          true,
			Prioridad:       domain.NormalizePrioridad(in.Prioridad),
			AsignadoEn:      uc.now(),
		}
		if err := uc.store.Casos.Create(ctx, nuevo); err != nil {
			return err
		}

		_, err = uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
			IncidenciaID: in.IncidenciaID,
			CasoID:       nuevo.ID,
			Nuevo:        string(domain.ProveedorAsignada),
			Actor:        actor,
			Metadatos:    meta,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("proveedor asignado",
		zap.String("incidencia_id", nuevo.IncidenciaID),
		zap.String("caso_id", nuevo.ID),
		zap.String("proveedor_id", nuevo.ProveedorID),
		zap.Bool("reasignacion", reasignacion))
	return nuevo, nil
}

type AnularInput struct {
	CasoID      string `json:"caso_id"`
	Motivo      string `json:"motivo"`
	EsDuplicada bool   `json:"es_duplicada"`
}

// AnularAsignacion cancels a provider assignment. The case is deactivated,
// never deleted.
func (uc *UseCase) AnularAsignacion(ctx context.Context, actor domain.Actor, in AnularInput) (*domain.ProveedorCaso, error) {
	motivo := strings.TrimSpace(in.Motivo)
	if in.EsDuplicada {
		motivo = domain.MotivoDuplicacion
	}
	if motivo == "" {
		return nil, domain.Validationf("el motivo de anulación es obligatorio")
	}

	var caso *domain.ProveedorCaso
	err := usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		var err error
		caso, err = usecase.CasoActivo(ctx, uc.store.Casos, in.CasoID, actor)
		if err != nil {
			return err
		}
		from := caso.EstadoProveedor
		if err := domain.ValidarTransicionProveedor(from, domain.ProveedorAnulada, domain.ViaAvance); err != nil {
			return err
		}
		return uc.anular(ctx, actor, caso, motivo, in.EsDuplicada)
	})
	if err != nil {
		return nil, err
	}

	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifAnulacion, caso, "Se ha anulado la asignación: "+motivo,
		map[string]string{"motivo": motivo}))
	return caso, nil
}

// AnularEnTx cancels caso inside an already running transaction. It is used
// when the whole incidencia is anulada.
func (uc *UseCase) AnularEnTx(ctx context.Context, actor domain.Actor, caso *domain.ProveedorCaso, motivo string) error {
	if caso.EstadoProveedor == domain.ProveedorAnulada {
		caso.Activo = false
		return uc.store.Casos.Update(ctx, caso, caso.EstadoProveedor)
	}
	if err := domain.ValidarTransicionProveedor(caso.EstadoProveedor, domain.ProveedorAnulada, domain.ViaAvance); err != nil {
		return err
	}
	return uc.anular(ctx, actor, caso, motivo, false)
}

func (uc *UseCase) anular(ctx context.Context, actor domain.Actor, caso *domain.ProveedorCaso, motivo string, duplicada bool) error {
	from := caso.EstadoProveedor
	ts := uc.now()
	caso.EstadoProveedor = domain.ProveedorAnulada
	caso.Activo = false
	caso.FechaAnulacion = &ts
	caso.MotivoAnulacion = &motivo
	caso.EsDuplicada = duplicada
	if err := uc.store.Casos.Update(ctx, caso, from); err != nil {
		return err
	}

	_, err := uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
		IncidenciaID: caso.IncidenciaID,
		CasoID:       caso.ID,
		Anterior:     string(from),
		Nuevo:        string(domain.ProveedorAnulada),
		Actor:        actor,
		Motivo:       motivo,
		Metadatos:    domain.Metadatos{"accion": "anular_asignacion", "es_duplicada": duplicada},
	})
	return err
}

type PausaInput struct {
	CasoID string `json:"caso_id"`
	Motivo string `json:"motivo"`
}

// PonerEnEspera pauses the provider track, remembering the paused state.
func (uc *UseCase) PonerEnEspera(ctx context.Context, actor domain.Actor, in PausaInput) (*domain.ProveedorCaso, error) {
	motivo, err := usecase.RequireMotivo(in.Motivo)
	if err != nil {
		return nil, err
	}

	var caso *domain.ProveedorCaso
	err = usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		var err error
		caso, err = usecase.CasoActivo(ctx, uc.store.Casos, in.CasoID, actor)
		if err != nil {
			return err
		}
		from := caso.EstadoProveedor
		if err := domain.ValidarTransicionProveedor(from, domain.ProveedorEnEspera, domain.ViaAvance); err != nil {
			return err
		}
		caso.EstadoPrevio = from
		caso.EstadoProveedor = domain.ProveedorEnEspera
		if err := uc.store.Casos.Update(ctx, caso, from); err != nil {
			return err
		}
		_, err = uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
			IncidenciaID: caso.IncidenciaID,
			CasoID:       caso.ID,
			Anterior:     string(from),
			Nuevo:        string(domain.ProveedorEnEspera),
			Actor:        actor,
			Motivo:       motivo,
			Metadatos:    domain.Metadatos{"accion": "poner_en_espera"},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifPausa, caso, "El caso ha quedado en espera: "+motivo, nil))
	return caso, nil
}

// Reanudar returns a paused case to the state it was paused from.
func (uc *UseCase) Reanudar(ctx context.Context, actor domain.Actor, in PausaInput) (*domain.ProveedorCaso, error) {
	motivo := strings.TrimSpace(in.Motivo)

	var caso *domain.ProveedorCaso
	err := usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		var err error
		caso, err = usecase.CasoActivo(ctx, uc.store.Casos, in.CasoID, actor)
		if err != nil {
			return err
		}
		if caso.EstadoProveedor != domain.ProveedorEnEspera {
			return domain.Preconditionf("el caso no está en espera (estado %s)", caso.EstadoProveedor)
		}
		to := caso.EstadoPrevio
		if to == "" {
			to = domain.ProveedorAsignada
		}
		if err := domain.ValidarTransicionProveedor(domain.ProveedorEnEspera, to, domain.ViaAvance); err != nil {
			return err
		}
		caso.EstadoProveedor = to
		caso.EstadoPrevio = ""
		if err := uc.store.Casos.Update(ctx, caso, domain.ProveedorEnEspera); err != nil {
			return err
		}
		_, err = uc.ledger.RegistrarProveedor(ctx, historial.Transicion{
			IncidenciaID: caso.IncidenciaID,
			CasoID:       caso.ID,
			Anterior:     string(domain.ProveedorEnEspera),
			Nuevo:        string(to),
			Actor:        actor,
			Motivo:       motivo,
			Metadatos:    domain.Metadatos{"accion": "reanudar"},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.effects.Notificar(ctx, usecase.NotificacionCaso(NotifReanudacion, caso, "El caso se ha reanudado", nil))
	return caso, nil
}

// Historial lists every case of an incidencia, inactive ones included,
// ordered by assignment time.
func (uc *UseCase) Historial(ctx context.Context, incidenciaID string) ([]domain.ProveedorCaso, error) {
	return usecase.Read(ctx, uc.policy, func(ctx context.Context) ([]domain.ProveedorCaso, error) {
		return uc.store.Casos.ListByIncidencia(ctx, incidenciaID)
	})
}

// Activo returns the active case of an incidencia, or nil.
func (uc *UseCase) Activo(ctx context.Context, incidenciaID string) (*domain.ProveedorCaso, error) {
	return usecase.Read(ctx, uc.policy, func(ctx context.Context) (*domain.ProveedorCaso, error) {
		return uc.store.Casos.FindActivo(ctx, incidenciaID)
	})
}
