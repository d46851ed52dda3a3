package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/pkg/httpcontext"
	appLogger "github.com/fastygo/incidencias/pkg/logger"
	"github.com/fastygo/incidencias/usecase"
)

// AccionHandler exposes the workflow command dispatcher.
type AccionHandler struct {
	baseHandler
	dispatcher *usecase.Dispatcher
}

func NewAccionHandler(dispatcher *usecase.Dispatcher, adapter *httpcontext.Adapter, logger *zap.Logger) *AccionHandler {
	return &AccionHandler{
		baseHandler: newBaseHandler(adapter, logger),
		dispatcher:  dispatcher,
	}
}

// Execute runs POST /api/v1/acciones/{accion}. The body is the action's JSON
// payload and the response is always a Result.
func (h *AccionHandler) Execute(ctx *fasthttp.RequestCtx) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}
	name, _ := ctx.UserValue("accion").(string)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result := h.dispatcher.ExecuteCommand(stdCtx, usecase.Command{
		Name:    name,
		Actor:   actor,
		Payload: append([]byte(nil), ctx.PostBody()...),
	})
	appLogger.FromContext(stdCtx, h.logger).Info("accion",
		zap.String("accion", name),
		zap.Bool("success", result.Success),
		zap.String("code", string(result.Code)))

	h.respondResult(ctx, http.StatusOK, result)
}
