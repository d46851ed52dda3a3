package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/api/transport"
	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/pkg/httpcontext"
	appLogger "github.com/fastygo/incidencias/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

// actor returns the authenticated actor or writes a 401.
func (h baseHandler) actor(ctx *fasthttp.RequestCtx) (domain.Actor, bool) {
	actor, ok := httpcontext.ActorFromRequest(ctx)
	if !ok {
		h.respondError(ctx, domain.ErrUnauthorized)
		return domain.Actor{}, false
	}
	return actor, true
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, err error) {
	status := StatusFor(domain.CodeOf(err))
	if status >= http.StatusInternalServerError {
		stdCtx := appLogger.ContextWithRequestID(context.Background(), string(ctx.Response.Header.Peek("X-Request-ID")))
		appLogger.FromContext(stdCtx, h.logger).Error("request failed",
			zap.ByteString("path", ctx.Path()),
			zap.Error(err))
	}
	h.respondJSON(ctx, status, transport.NewError(string(domain.CodeOf(err)), domain.PublicMessage(err), nil))
}

// StatusFor maps a domain error code onto an HTTP status.
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case "":
		return http.StatusOK
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeForbidden:
		return http.StatusForbidden
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodePrecondition:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeConcurrent:
		return http.StatusConflict
	case domain.ErrCodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// respondResult writes a workflow Result as-is, with the status derived from
// its error code.
func (h baseHandler) respondResult(ctx *fasthttp.RequestCtx, okStatus int, result domain.Result) {
	status := okStatus
	if !result.Success {
		status = StatusFor(result.Code)
		if result.Code == "" {
			status = http.StatusInternalServerError
		}
	}
	h.respondJSON(ctx, status, result)
}
