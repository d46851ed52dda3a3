// Package incidencia drives the client-facing state machine and the read views
// of an incidencia.
package incidencia

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/historial"
	"github.com/fastygo/incidencias/usecase/proveedorcaso"
)

const (
	NotifAnulacion = "incidencia_anulada"
	NotifPausa     = "incidencia_en_espera"
)

type UseCase struct {
	store   repository.Store
	ledger  *historial.Ledger
	casos   *proveedorcaso.UseCase
	effects *usecase.Effects
	blobs   usecase.BlobStore
	policy  usecase.ReadPolicy
	logger  *zap.Logger
}

func New(store repository.Store, ledger *historial.Ledger, casos *proveedorcaso.UseCase, effects *usecase.Effects, blobs usecase.BlobStore, policy usecase.ReadPolicy, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		store:   store,
		ledger:  ledger,
		casos:   casos,
		effects: effects,
		blobs:   blobs,
		policy:  policy,
		logger:  logger,
	}
}

type CrearInput struct {
	Centro      string `json:"centro"`
	Descripcion string `json:"descripcion"`
	Prioridad   int    `json:"prioridad"`
}

// Crear registers a new incidencia in Abierta.
func (uc *UseCase) Crear(ctx context.Context, actor domain.Actor, in CrearInput) (*domain.Incidencia, error) {
	centro := strings.TrimSpace(in.Centro)
	if centro == "" {
		return nil, domain.Validationf("el centro es obligatorio")
	}

	inc := &domain.Incidencia{
		EstadoCliente: domain.ClienteAbierta,
		Centro:        centro,
		Descripcion:   strings.TrimSpace(in.Descripcion),
		Prioridad:     domain.NormalizePrioridad(in.Prioridad),
		CreadoPor:     actor.PersonaRef(),
	}
	err := usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		created, err := uc.store.Incidencias.Create(ctx, inc)
		if err != nil {
			return err
		}
		inc = created
		_, err = uc.ledger.RegistrarCliente(ctx, historial.Transicion{
			IncidenciaID: inc.ID,
			Nuevo:        string(domain.ClienteAbierta),
			Actor:        actor,
			Metadatos:    domain.Metadatos{"accion": "crear", "num_solicitud": inc.NumSolicitud},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("incidencia creada",
		zap.String("incidencia_id", inc.ID),
		zap.String("num_solicitud", inc.NumSolicitud))
	return inc, nil
}

type EstadoInput struct {
	IncidenciaID string `json:"incidencia_id"`
	Motivo       string `json:"motivo"`
}

// PonerEnEspera pauses the client track.
func (uc *UseCase) PonerEnEspera(ctx context.Context, actor domain.Actor, in EstadoInput) (*domain.Incidencia, error) {
	motivo, err := usecase.RequireMotivo(in.Motivo)
	if err != nil {
		return nil, err
	}
	inc, err := uc.mover(ctx, actor, in.IncidenciaID, domain.ClienteEnEspera, motivo, "poner_en_espera")
	if err != nil {
		return nil, err
	}
	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, nil, inc.ID, domain.AmbitoCliente,
		"Incidencia en espera: "+motivo, nil))
	uc.effects.Notificar(ctx, domain.Notificacion{
		Tipo:         NotifPausa,
		IncidenciaID: inc.ID,
		NumSolicitud: inc.NumSolicitud,
		Mensaje:      "La incidencia ha quedado en espera: " + motivo,
	})
	return inc, nil
}

// Reabrir returns a paused incidencia to Abierta.
func (uc *UseCase) Reabrir(ctx context.Context, actor domain.Actor, in EstadoInput) (*domain.Incidencia, error) {
	return uc.mover(ctx, actor, in.IncidenciaID, domain.ClienteAbierta, strings.TrimSpace(in.Motivo), "reabrir")
}

func (uc *UseCase) mover(ctx context.Context, actor domain.Actor, id string, to domain.EstadoCliente, motivo, accion string) (*domain.Incidencia, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Validationf("incidencia_id es obligatorio")
	}

	var inc *domain.Incidencia
	err := usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		var err error
		inc, err = uc.store.Incidencias.GetByID(ctx, id)
		if err != nil {
			return err
		}
		from := inc.EstadoCliente
		if err := domain.ValidarTransicionCliente(from, to); err != nil {
			return err
		}
		if err := uc.store.Incidencias.UpdateEstado(ctx, inc.ID, from, to); err != nil {
			return err
		}
		inc.EstadoCliente = to
		_, err = uc.ledger.RegistrarCliente(ctx, historial.Transicion{
			IncidenciaID: inc.ID,
			Anterior:     string(from),
			Nuevo:        string(to),
			Actor:        actor,
			Motivo:       motivo,
			Metadatos:    domain.Metadatos{"accion": accion},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// Anulacion is the outcome of anulling an incidencia.
type Anulacion struct {
	Incidencia *domain.Incidencia    `json:"incidencia"`
	Caso       *domain.ProveedorCaso `json:"caso,omitempty"`
}

// Anular cancels the whole incidencia. An active provider case is anulada in
// the same transaction.
func (uc *UseCase) Anular(ctx context.Context, actor domain.Actor, in EstadoInput) (*Anulacion, error) {
	motivo, err := usecase.RequireMotivo(in.Motivo)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.IncidenciaID) == "" {
		return nil, domain.Validationf("incidencia_id es obligatorio")
	}

	out := &Anulacion{}
	err = usecase.Write(ctx, uc.store.Tx, func(ctx context.Context) error {
		inc, err := uc.store.Incidencias.GetByID(ctx, in.IncidenciaID)
		if err != nil {
			return err
		}
		from := inc.EstadoCliente
		if err := domain.ValidarTransicionCliente(from, domain.ClienteAnulada); err != nil {
			return err
		}

		caso, err := uc.store.Casos.FindActivo(ctx, inc.ID)
		if err != nil {
			return err
		}
		if caso != nil {
			if err := uc.casos.AnularEnTx(ctx, actor, caso, motivo); err != nil {
				return err
			}
			out.Caso = caso
		}

		if err := uc.store.Incidencias.UpdateEstado(ctx, inc.ID, from, domain.ClienteAnulada); err != nil {
			return err
		}
		inc.EstadoCliente = domain.ClienteAnulada
		out.Incidencia = inc
		_, err = uc.ledger.RegistrarCliente(ctx, historial.Transicion{
			IncidenciaID: inc.ID,
			Anterior:     string(from),
			Nuevo:        string(domain.ClienteAnulada),
			Actor:        actor,
			Motivo:       motivo,
			Metadatos:    domain.Metadatos{"accion": "anular"},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.effects.Comentar(ctx, usecase.ComentarioAccion(actor, nil, out.Incidencia.ID, domain.AmbitoCliente,
		"Incidencia anulada: "+motivo, nil))
	if out.Caso != nil {
		n := usecase.NotificacionCaso(NotifAnulacion, out.Caso, "La incidencia ha sido anulada: "+motivo, nil)
		n.NumSolicitud = out.Incidencia.NumSolicitud
		uc.effects.Notificar(ctx, n)
	}
	return out, nil
}

type ComentarInput struct {
	IncidenciaID string           `json:"incidencia_id"`
	CasoID       string           `json:"caso_id,omitempty"`
	Ambito       domain.Ambito    `json:"ambito"`
	Texto        string           `json:"texto"`
	Adjuntos     []domain.Archivo `json:"adjuntos,omitempty"`
}

// Comentar posts a user comment. Unlike workflow comments this is the primary
// write, so failures reach the caller.
func (uc *UseCase) Comentar(ctx context.Context, actor domain.Actor, in ComentarInput) (*domain.Comentario, error) {
	texto := strings.TrimSpace(in.Texto)
	if texto == "" && len(in.Adjuntos) == 0 {
		return nil, domain.Validationf("el comentario está vacío")
	}
	if !in.Ambito.Valid() {
		return nil, domain.Validationf("ambito debe ser cliente o proveedor")
	}
	if actor.Rol == domain.RolProveedor && in.Ambito != domain.AmbitoProveedor {
		return nil, domain.ErrForbidden
	}

	inc, err := uc.store.Incidencias.GetByID(ctx, in.IncidenciaID)
	if err != nil {
		return nil, err
	}
	var caso *domain.ProveedorCaso
	if in.CasoID != "" {
		caso, err = uc.store.Casos.GetByID(ctx, in.CasoID)
		if err != nil {
			return nil, err
		}
		if caso.IncidenciaID != inc.ID {
			return nil, domain.Validationf("el caso no pertenece a la incidencia")
		}
	} else if actor.Rol == domain.RolProveedor {
		if caso, err = uc.store.Casos.FindActivo(ctx, inc.ID); err != nil {
			return nil, err
		}
	}
	if actor.Rol == domain.RolProveedor && !actor.PuedeActuarSobre(caso) {
		return nil, domain.ErrForbidden
	}

	var adjuntos []domain.Adjunto
	for i := range in.Adjuntos {
		a, err := usecase.GuardarArchivo(ctx, uc.blobs, "comentarios/"+inc.ID, &in.Adjuntos[i])
		if err != nil {
			usecase.Compensar(ctx, uc.blobs, uc.logger, adjuntos...)
			return nil, err
		}
		adjuntos = append(adjuntos, a)
	}

	c := usecase.ComentarioAccion(actor, caso, inc.ID, in.Ambito, texto, nil, adjuntos...)
	if err := uc.store.Comentarios.Create(ctx, c); err != nil {
		usecase.Compensar(ctx, uc.blobs, uc.logger, adjuntos...)
		return nil, err
	}
	return c, nil
}

func (uc *UseCase) Obtener(ctx context.Context, id string) (*domain.Incidencia, error) {
	return usecase.Read(ctx, uc.policy, func(ctx context.Context) (*domain.Incidencia, error) {
		return uc.store.Incidencias.GetByID(ctx, id)
	})
}

func (uc *UseCase) ObtenerPorNumSolicitud(ctx context.Context, num string) (*domain.Incidencia, error) {
	return usecase.Read(ctx, uc.policy, func(ctx context.Context) (*domain.Incidencia, error) {
		return uc.store.Incidencias.GetByNumSolicitud(ctx, strings.TrimSpace(num))
	})
}

// Listar applies the caller's view state. Providers only see their own cases.
func (uc *UseCase) Listar(ctx context.Context, actor domain.Actor, filtro domain.FiltroIncidencias) ([]domain.Incidencia, error) {
	if filtro.EstadoCliente != "" && !filtro.EstadoCliente.Valid() {
		return nil, domain.Validationf("estado_cliente no válido: %q", filtro.EstadoCliente)
	}
	if filtro.EstadoProveedor != "" && !filtro.EstadoProveedor.Valid() {
		return nil, domain.Validationf("estado_proveedor no válido: %q", filtro.EstadoProveedor)
	}
	if actor.Rol == domain.RolProveedor {
		filtro.ProveedorID = actor.PersonaID
	}
	return usecase.Read(ctx, uc.policy, func(ctx context.Context) ([]domain.Incidencia, error) {
		return uc.store.Incidencias.List(ctx, filtro)
	})
}

func (uc *UseCase) Historial(ctx context.Context, id string, tipo domain.TipoEstado) ([]domain.HistorialEstado, error) {
	return uc.ledger.Historial(ctx, id, tipo)
}

// CasosProveedor lists every provider case of the incidencia, inactive ones
// included.
func (uc *UseCase) CasosProveedor(ctx context.Context, id string) ([]domain.ProveedorCaso, error) {
	return uc.casos.Historial(ctx, id)
}

func (uc *UseCase) Comentarios(ctx context.Context, actor domain.Actor, id string, ambito domain.Ambito) ([]domain.Comentario, error) {
	if ambito != "" && !ambito.Valid() {
		return nil, domain.Validationf("ambito no válido: %q", ambito)
	}
	if actor.Rol == domain.RolProveedor {
		ambito = domain.AmbitoProveedor
	}
	return usecase.Read(ctx, uc.policy, func(ctx context.Context) ([]domain.Comentario, error) {
		return uc.store.Comentarios.ListByIncidencia(ctx, id, ambito)
	})
}

// Detalle is the aggregated view of an incidencia.
type Detalle struct {
	Incidencia *domain.Incidencia    `json:"incidencia"`
	CasoActivo *domain.ProveedorCaso `json:"caso_activo,omitempty"`
}

func (uc *UseCase) Detalle(ctx context.Context, id string) (*Detalle, error) {
	inc, err := uc.Obtener(ctx, id)
	if err != nil {
		return nil, err
	}
	caso, err := uc.casos.Activo(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detalle{Incidencia: inc, CasoActivo: caso}, nil
}
