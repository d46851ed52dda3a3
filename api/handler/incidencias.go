package handler

import (
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/api/transport"
	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/pkg/httpcontext"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/acciones"
	incidenciaUC "github.com/fastygo/incidencias/usecase/incidencia"
	"github.com/fastygo/incidencias/usecase/vista"
)

type IncidenciaHandler struct {
	baseHandler
	uc         *incidenciaUC.UseCase
	vistas     *vista.UseCase
	dispatcher *usecase.Dispatcher
}

func NewIncidenciaHandler(uc *incidenciaUC.UseCase, vistas *vista.UseCase, dispatcher *usecase.Dispatcher, adapter *httpcontext.Adapter, logger *zap.Logger) *IncidenciaHandler {
	return &IncidenciaHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		vistas:      vistas,
		dispatcher:  dispatcher,
	}
}

// List serves GET /api/v1/incidencias. With ?vista=guardada the caller's
// saved view is used instead of the query string.
func (h *IncidenciaHandler) List(ctx *fasthttp.RequestCtx) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	args := ctx.QueryArgs()
	filtro := domain.FiltroIncidencias{
		EstadoCliente:   domain.EstadoCliente(args.Peek("estado_cliente")),
		EstadoProveedor: domain.EstadoProveedor(args.Peek("estado_proveedor")),
		Centro:          string(args.Peek("centro")),
		ProveedorID:     string(args.Peek("proveedor_id")),
		Busqueda:        string(args.Peek("q")),
		SoloActivas:     args.GetBool("solo_activas"),
		Limit:           parseInt(string(args.Peek("limit")), 50),
		Offset:          parseInt(string(args.Peek("offset")), 0),
	}
	if string(args.Peek("vista")) == "guardada" && h.vistas != nil {
		saved, err := h.vistas.Obtener(stdCtx, actor)
		switch {
		case err == nil:
			filtro = saved.Filtro
		case !domain.IsDomainError(err, domain.ErrCodeNotFound):
			h.respondError(ctx, err)
			return
		}
	}

	items, err := h.uc.Listar(stdCtx, actor, filtro)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewPage(items, filtro.Limit, filtro.Offset, len(items)))
}

// Create serves POST /api/v1/incidencias through the crear_incidencia command.
func (h *IncidenciaHandler) Create(ctx *fasthttp.RequestCtx) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result := h.dispatcher.ExecuteCommand(stdCtx, usecase.Command{
		Name:    acciones.CrearIncidencia,
		Actor:   actor,
		Payload: append([]byte(nil), ctx.PostBody()...),
	})
	h.respondResult(ctx, http.StatusCreated, result)
}

// Get serves GET /api/v1/incidencias/{id}; the id may also be a num_solicitud.
func (h *IncidenciaHandler) Get(ctx *fasthttp.RequestCtx) {
	if _, ok := h.actor(ctx); !ok {
		return
	}
	id, _ := ctx.UserValue("id").(string)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var (
		inc *domain.Incidencia
		err error
	)
	if strings.HasPrefix(id, "INC-") {
		inc, err = h.uc.ObtenerPorNumSolicitud(stdCtx, id)
	} else {
		inc, err = h.uc.Obtener(stdCtx, id)
	}
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, inc)
}

// Consulta serves GET /api/v1/incidencias/{id}/{consulta}. Query string
// arguments are passed through as parameters.
func (h *IncidenciaHandler) Consulta(ctx *fasthttp.RequestCtx) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}
	id, _ := ctx.UserValue("id").(string)
	name, _ := ctx.UserValue("consulta").(string)

	params := make(map[string]string)
	ctx.QueryArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	data, err := h.dispatcher.ExecuteQuery(stdCtx, usecase.Query{
		Name:   name,
		Actor:  actor,
		ID:     id,
		Params: params,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, data)
}
