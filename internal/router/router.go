package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/incidencias/api/handler"
	"github.com/fastygo/incidencias/api/transport"
	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/internal/middleware"
	"github.com/fastygo/incidencias/usecase/acciones"
)

type Handlers struct {
	Health      *apiHandler.HealthHandler
	Incidencias *apiHandler.IncidenciaHandler
	Acciones    *apiHandler.AccionHandler
	// Filtros is nil when redis is disabled.
	Filtros *apiHandler.FiltroHandler
}

type Middleware = func(fasthttp.RequestHandler) fasthttp.RequestHandler

func New(handlers Handlers, authMiddleware Middleware, authz *middleware.Authorizer, logger *zap.Logger) *router.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := router.New()
	r.PanicHandler = func(ctx *fasthttp.RequestCtx, rcv interface{}) {
		logger.Error("panic in handler", zap.Any("panic", rcv), zap.ByteString("path", ctx.Path()))
		ctx.Response.Header.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(transport.NewError(string(domain.ErrCodeInternal), "internal error", nil).String())
	}

	protect := func(perm func(*fasthttp.RequestCtx) string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return authMiddleware(authz.Require(perm)(h))
	}

	r.GET("/health", handlers.Health.Check)

	r.GET("/api/v1/incidencias", protect(middleware.Static(middleware.PermListarIncidencias), handlers.Incidencias.List))
	r.POST("/api/v1/incidencias", protect(middleware.Static(acciones.CrearIncidencia), handlers.Incidencias.Create))
	r.GET("/api/v1/incidencias/{id}", protect(middleware.Static(middleware.PermVerIncidencia), handlers.Incidencias.Get))
	r.GET("/api/v1/incidencias/{id}/{consulta}", protect(middleware.FromPath("consulta", "consulta:"), handlers.Incidencias.Consulta))

	r.POST("/api/v1/acciones/{accion}", protect(middleware.FromPath("accion", ""), handlers.Acciones.Execute))

	if handlers.Filtros != nil {
		filtros := middleware.Static(middleware.PermFiltros)
		r.GET("/api/v1/filtros", protect(filtros, handlers.Filtros.Get))
		r.PUT("/api/v1/filtros", protect(filtros, handlers.Filtros.Put))
		r.DELETE("/api/v1/filtros", protect(filtros, handlers.Filtros.Delete))
		r.POST("/api/v1/filtros/renovar", protect(filtros, handlers.Filtros.Renew))
	}

	return r
}
