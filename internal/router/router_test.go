package router

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/incidencias/api/handler"
	"github.com/fastygo/incidencias/api/transport"
	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/internal/infrastructure/monitor"
	"github.com/fastygo/incidencias/internal/middleware"
	"github.com/fastygo/incidencias/internal/testutil"
	"github.com/fastygo/incidencias/pkg/httpcontext"
	"github.com/fastygo/incidencias/usecase"
	"github.com/fastygo/incidencias/usecase/acciones"
)

const secret = "router-test-secret"

type fakeMonitor struct{ online bool }

func (m fakeMonitor) GetStatus() monitor.Status {
	return monitor.Status{Database: m.online, Driver: "sqlite", Buffer: true}
}

func (m fakeMonitor) IsOnline() bool { return m.online }

func newTestRouter(t *testing.T, online bool) fasthttp.RequestHandler {
	t.Helper()
	svc := acciones.NewServicios(acciones.Deps{
		Store:    testutil.NewStore(t),
		Blobs:    testutil.NewBlobs(),
		Notifier: &testutil.Notifier{},
		Buffer:   &testutil.Buffer{},
		Lectura:  usecase.DefaultReadPolicy,
	})
	dispatcher := usecase.NewDispatcher(nil)
	acciones.Registrar(dispatcher, svc)

	authz, err := middleware.NewAuthorizer(middleware.DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	adapter := httpcontext.NewAdapter(5 * time.Second)
	r := New(Handlers{
		Health:      apiHandler.NewHealthHandler(fakeMonitor{online: online}, adapter, nil),
		Incidencias: apiHandler.NewIncidenciaHandler(svc.Incidencias, nil, dispatcher, adapter, nil),
		Acciones:    apiHandler.NewAccionHandler(dispatcher, adapter, nil),
	}, middleware.JWTAuth(secret, "", nil), authz, nil)
	return r.Handler
}

func token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		PersonaID: actor.PersonaID,
		Email:     actor.Email,
		Rol:       string(actor.Rol),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return tok
}

func do(h fasthttp.RequestHandler, method, uri, bearer, body string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if bearer != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	h(ctx)
	return ctx
}

func decodeResult(t *testing.T, ctx *fasthttp.RequestCtx) domain.Result {
	t.Helper()
	var r domain.Result
	if err := json.Unmarshal(ctx.Response.Body(), &r); err != nil {
		t.Fatalf("decoding result %q: %v", ctx.Response.Body(), err)
	}
	return r
}

func TestHealth(t *testing.T) {
	if ctx := do(newTestRouter(t, true), "GET", "/health", "", ""); ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("online status = %d", ctx.Response.StatusCode())
	}
	if ctx := do(newTestRouter(t, false), "GET", "/health", "", ""); ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Errorf("offline status = %d", ctx.Response.StatusCode())
	}
}

func TestWorkflowOverHTTP(t *testing.T) {
	h := newTestRouter(t, true)
	cliente := token(t, testutil.Cliente)
	control := token(t, testutil.Control)
	proveedor := token(t, testutil.Proveedor)

	if ctx := do(h, "POST", "/api/v1/incidencias", "", `{"centro":"C-01"}`); ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("anonymous create status = %d", ctx.Response.StatusCode())
	}

	ctx := do(h, "POST", "/api/v1/incidencias", cliente, `{"centro":"","descripcion":"sin centro"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Errorf("invalid create status = %d", ctx.Response.StatusCode())
	}
	if r := decodeResult(t, ctx); r.Success || r.Code != domain.ErrCodeValidation {
		t.Errorf("invalid create result = %+v", r)
	}

	ctx = do(h, "POST", "/api/v1/incidencias", cliente, `{"centro":"C-01","descripcion":"Fuga en cocina"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("create status = %d body=%s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	created := decodeResult(t, ctx)
	if !created.Success || created.ID == "" {
		t.Fatalf("create result = %+v", created)
	}

	ctx = do(h, "POST", "/api/v1/acciones/asignar_proveedor", cliente,
		`{"incidencia_id":"`+created.ID+`","proveedor_id":"`+testutil.Proveedor.PersonaID+`"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusForbidden {
		t.Errorf("cliente asignar status = %d", ctx.Response.StatusCode())
	}

	ctx = do(h, "POST", "/api/v1/acciones/asignar_proveedor", control,
		`{"incidencia_id":"`+created.ID+`","proveedor_id":"`+testutil.Proveedor.PersonaID+`"}`)
	if r := decodeResult(t, ctx); ctx.Response.StatusCode() != fasthttp.StatusOK || !r.Success {
		t.Fatalf("asignar status = %d result = %+v", ctx.Response.StatusCode(), r)
	}

	ctx = do(h, "POST", "/api/v1/acciones/cerrar_incidencia", proveedor, `{"incidencia_id":"`+created.ID+`"}`)
	if ctx.Response.StatusCode() != fasthttp.StatusForbidden {
		t.Errorf("proveedor cerrar status = %d", ctx.Response.StatusCode())
	}

	ctx = do(h, "GET", "/api/v1/incidencias/"+created.ID+"/historial", proveedor, "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("historial status = %d body=%s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var env struct {
		Status string                   `json:"status"`
		Data   []domain.HistorialEstado `json:"data"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &env); err != nil {
		t.Fatalf("decoding historial: %v", err)
	}
	if env.Status != "success" || len(env.Data) != 2 {
		t.Errorf("historial = %+v", env)
	}

	ctx = do(h, "GET", "/api/v1/incidencias/"+created.ID, cliente, "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("get status = %d", ctx.Response.StatusCode())
	}
}

func TestUnknownActionIsNotFound(t *testing.T) {
	h := newTestRouter(t, true)
	ctx := do(h, "POST", "/api/v1/acciones/borrar_todo", token(t, testutil.Control), `{}`)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Errorf("status = %d", ctx.Response.StatusCode())
	}
	if r := decodeResult(t, ctx); r.Code != domain.ErrCodeNotFound {
		t.Errorf("result = %+v", r)
	}
}

func TestMissingIncidenciaMapsToNotFound(t *testing.T) {
	h := newTestRouter(t, true)
	ctx := do(h, "GET", "/api/v1/incidencias/9a1f5c1e-0000-4000-8000-000000000000", token(t, testutil.Control), "")
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	var env transport.Envelope
	if err := json.Unmarshal(ctx.Response.Body(), &env); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if env.Code != string(domain.ErrCodeNotFound) {
		t.Errorf("code = %q", env.Code)
	}
}
