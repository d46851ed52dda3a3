package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/api/transport"
	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/pkg/httpcontext"
	"github.com/fastygo/incidencias/usecase/vista"
)

type FiltroHandler struct {
	baseHandler
	uc *vista.UseCase
}

func NewFiltroHandler(uc *vista.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *FiltroHandler {
	return &FiltroHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

func (h *FiltroHandler) Get(ctx *fasthttp.RequestCtx) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	v, err := h.uc.Obtener(stdCtx, actor)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, v)
}

func (h *FiltroHandler) Put(ctx *fasthttp.RequestCtx) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	var req transport.FiltroRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	v, err := h.uc.Guardar(stdCtx, actor, req.ToDomain())
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, v)
}

// Renew serves POST /api/v1/filtros/renovar.
func (h *FiltroHandler) Renew(ctx *fasthttp.RequestCtx) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	v, err := h.uc.Renovar(stdCtx, actor)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, v)
}

func (h *FiltroHandler) Delete(ctx *fasthttp.RequestCtx) {
	actor, ok := h.actor(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Borrar(stdCtx, actor); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}
