// Package acciones wires the workflow use cases into the command and query
// dispatcher under stable action names.
package acciones

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/repository"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/historial"
	"github.com/fastygo/incidencias/usecase/incidencia"
	"github.com/fastygo/incidencias/usecase/presupuesto"
	"github.com/fastygo/incidencias/usecase/proveedorcaso"
	"github.com/fastygo/incidencias/usecase/resolucion"
)

// Workflow commands.
const (
	CrearIncidencia         = "crear_incidencia"
	PonerIncidenciaEnEspera = "poner_incidencia_en_espera"
	ReabrirIncidencia       = "reabrir_incidencia"
	AnularIncidencia        = "anular_incidencia"
	Comentar                = "comentar"
	AsignarProveedor        = "asignar_proveedor"
	AnularAsignacion        = "anular_asignacion"
	ReasignarProveedor      = "reasignar_proveedor"
	PonerCasoEnEspera       = "poner_caso_en_espera"
	ReanudarCaso            = "reanudar_caso"
	OfertarPresupuesto      = "ofertar_presupuesto"
	AprobarPresupuesto      = "aprobar_presupuesto"
	RechazarPresupuesto     = "rechazar_presupuesto"
	ValoracionEconomica     = "valoracion_economica"
	ResolverIncidencia      = "resolver_incidencia"
	CalendarizarVisita      = "calendarizar_visita"
	CerrarIncidencia        = "cerrar_incidencia"
)

// Read views keyed by incidencia id.
const (
	ConsultaDetalle      = "detalle"
	ConsultaHistorial    = "historial"
	ConsultaCasos        = "casos"
	ConsultaPresupuestos = "presupuestos"
	ConsultaComentarios  = "comentarios"
	ConsultaDocumentos   = "documentos"
)

// Deps are the ports shared by every use case.
type Deps struct {
	Store    repository.Store
	Blobs    usecase.BlobStore
	Notifier usecase.Notifier
	Buffer   usecase.SideEffectBuffer
	Politica domain.PoliticaCierre
	Lectura  usecase.ReadPolicy
	Logger   *zap.Logger
}

// Servicios groups the constructed use cases.
type Servicios struct {
	Ledger       *historial.Ledger
	Incidencias  *incidencia.UseCase
	Casos        *proveedorcaso.UseCase
	Presupuestos *presupuesto.UseCase
	Resolucion   *resolucion.UseCase
}

func NewServicios(d Deps) *Servicios {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := historial.New(d.Store.Historial, d.Lectura)
	effects := usecase.NewEffects(d.Store.Comentarios, d.Notifier, d.Buffer, logger.Named("effects"))
	casos := proveedorcaso.New(d.Store, ledger, effects, d.Lectura, logger.Named("proveedorcaso"))
	return &Servicios{
		Ledger:       ledger,
		Casos:        casos,
		Incidencias:  incidencia.New(d.Store, ledger, casos, effects, d.Blobs, d.Lectura, logger.Named("incidencia")),
		Presupuestos: presupuesto.New(d.Store, ledger, effects, d.Blobs, d.Lectura, logger.Named("presupuesto")),
		Resolucion:   resolucion.New(d.Store, ledger, effects, d.Blobs, d.Politica, logger.Named("resolucion")),
	}
}

// Registrar registers every workflow command and read view on dispatcher.
func Registrar(dispatcher *usecase.Dispatcher, s *Servicios) {
	command(dispatcher, CrearIncidencia, func(ctx context.Context, a domain.Actor, in incidencia.CrearInput) (string, interface{}, error) {
		inc, err := s.Incidencias.Crear(ctx, a, in)
		return idOf(inc), inc, err
	})
	command(dispatcher, PonerIncidenciaEnEspera, func(ctx context.Context, a domain.Actor, in incidencia.EstadoInput) (string, interface{}, error) {
		inc, err := s.Incidencias.PonerEnEspera(ctx, a, in)
		return idOf(inc), inc, err
	})
	command(dispatcher, ReabrirIncidencia, func(ctx context.Context, a domain.Actor, in incidencia.EstadoInput) (string, interface{}, error) {
		inc, err := s.Incidencias.Reabrir(ctx, a, in)
		return idOf(inc), inc, err
	})
	command(dispatcher, AnularIncidencia, func(ctx context.Context, a domain.Actor, in incidencia.EstadoInput) (string, interface{}, error) {
		out, err := s.Incidencias.Anular(ctx, a, in)
		if err != nil {
			return "", nil, err
		}
		return out.Incidencia.ID, out, nil
	})
	command(dispatcher, Comentar, func(ctx context.Context, a domain.Actor, in incidencia.ComentarInput) (string, interface{}, error) {
		c, err := s.Incidencias.Comentar(ctx, a, in)
		if err != nil {
			return "", nil, err
		}
		return c.ID, c, nil
	})

	command(dispatcher, AsignarProveedor, func(ctx context.Context, a domain.Actor, in proveedorcaso.AsignarInput) (string, interface{}, error) {
		caso, err := s.Casos.Asignar(ctx, a, in)
		return casoID(caso), caso, err
	})
	command(dispatcher, AnularAsignacion, func(ctx context.Context, a domain.Actor, in proveedorcaso.AnularInput) (string, interface{}, error) {
		caso, err := s.Casos.AnularAsignacion(ctx, a, in)
		return casoID(caso), caso, err
	})
	command(dispatcher, ReasignarProveedor, func(ctx context.Context, a domain.Actor, in proveedorcaso.AsignarInput) (string, interface{}, error) {
		caso, err := s.Casos.ReasignarProveedor(ctx, a, in)
		return casoID(caso), caso, err
	})
	command(dispatcher, PonerCasoEnEspera, func(ctx context.Context, a domain.Actor, in proveedorcaso.PausaInput) (string, interface{}, error) {
		caso, err := s.Casos.PonerEnEspera(ctx, a, in)
		return casoID(caso), caso, err
	})
	command(dispatcher, ReanudarCaso, func(ctx context.Context, a domain.Actor, in proveedorcaso.PausaInput) (string, interface{}, error) {
		caso, err := s.Casos.Reanudar(ctx, a, in)
		return casoID(caso), caso, err
	})

	command(dispatcher, OfertarPresupuesto, func(ctx context.Context, a domain.Actor, in presupuesto.OfertaInput) (string, interface{}, error) {
		p, err := s.Presupuestos.OfertarPresupuesto(ctx, a, in)
		if err != nil {
			return "", nil, err
		}
		return p.ID, p, nil
	})
	command(dispatcher, AprobarPresupuesto, func(ctx context.Context, a domain.Actor, in presupuesto.AprobarInput) (string, interface{}, error) {
		p, err := s.Presupuestos.AprobarPresupuesto(ctx, a, in)
		if err != nil {
			return "", nil, err
		}
		return p.ID, p, nil
	})
	command(dispatcher, RechazarPresupuesto, func(ctx context.Context, a domain.Actor, in presupuesto.RechazoInput) (string, interface{}, error) {
		out, err := s.Presupuestos.RechazarPresupuesto(ctx, a, in)
		if err != nil {
			return "", nil, err
		}
		return out.Caso.ID, out, nil
	})
	command(dispatcher, ValoracionEconomica, func(ctx context.Context, a domain.Actor, in presupuesto.ValoracionInput) (string, interface{}, error) {
		caso, err := s.Presupuestos.ValoracionEconomica(ctx, a, in)
		return casoID(caso), caso, err
	})

	command(dispatcher, ResolverIncidencia, func(ctx context.Context, a domain.Actor, in resolucion.ResolverInput) (string, interface{}, error) {
		caso, err := s.Resolucion.ResolverIncidencia(ctx, a, in)
		return casoID(caso), caso, err
	})
	command(dispatcher, CalendarizarVisita, func(ctx context.Context, a domain.Actor, in resolucion.VisitaInput) (string, interface{}, error) {
		resumen, err := s.Resolucion.CalendarizarVisita(ctx, a, in)
		if err != nil {
			return "", nil, err
		}
		return in.CasoID, map[string]string{"resumen": resumen}, nil
	})
	command(dispatcher, CerrarIncidencia, func(ctx context.Context, a domain.Actor, in resolucion.CerrarInput) (string, interface{}, error) {
		out, err := s.Resolucion.CerrarIncidencia(ctx, a, in)
		if err != nil {
			return "", nil, err
		}
		return out.Incidencia.ID, out, nil
	})

	dispatcher.RegisterQuery(ConsultaDetalle, func(ctx context.Context, q usecase.Query) (interface{}, error) {
		return s.Incidencias.Detalle(ctx, q.ID)
	})
	dispatcher.RegisterQuery(ConsultaHistorial, func(ctx context.Context, q usecase.Query) (interface{}, error) {
		return s.Incidencias.Historial(ctx, q.ID, domain.TipoEstado(q.Params["tipo"]))
	})
	dispatcher.RegisterQuery(ConsultaCasos, func(ctx context.Context, q usecase.Query) (interface{}, error) {
		return s.Incidencias.CasosProveedor(ctx, q.ID)
	})
	dispatcher.RegisterQuery(ConsultaPresupuestos, func(ctx context.Context, q usecase.Query) (interface{}, error) {
		return s.Presupuestos.Listar(ctx, q.ID, q.Params["caso_id"])
	})
	dispatcher.RegisterQuery(ConsultaComentarios, func(ctx context.Context, q usecase.Query) (interface{}, error) {
		return s.Incidencias.Comentarios(ctx, q.Actor, q.ID, domain.Ambito(q.Params["ambito"]))
	})
	dispatcher.RegisterQuery(ConsultaDocumentos, func(ctx context.Context, q usecase.Query) (interface{}, error) {
		return s.Incidencias.Documentos(ctx, q.Actor, q.ID)
	})
}

// command adapts a typed use case call into a CommandHandler that decodes the
// JSON payload first.
func command[T any](d *usecase.Dispatcher, name string, fn func(ctx context.Context, actor domain.Actor, in T) (string, interface{}, error)) {
	d.RegisterCommand(name, func(ctx context.Context, cmd usecase.Command) (string, interface{}, error) {
		var in T
		if len(cmd.Payload) > 0 && strings.TrimSpace(string(cmd.Payload)) != "null" {
			if err := json.Unmarshal(cmd.Payload, &in); err != nil {
				return "", nil, domain.WrapError(domain.ErrCodeValidation, "payload inválido para "+name, err)
			}
		}
		return fn(ctx, cmd.Actor, in)
	})
}

func idOf(inc *domain.Incidencia) string {
	if inc == nil {
		return ""
	}
	return inc.ID
}

func casoID(caso *domain.ProveedorCaso) string {
	if caso == nil {
		return ""
	}
	return caso.ID
}
