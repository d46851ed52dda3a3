package middleware

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/pkg/httpcontext"
	"github.com/fastygo/incidencias/usecase/acciones"
)

const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.act == "*" || r.act == p.act)
`

// Non-workflow permissions checked by the router.
const (
	PermListarIncidencias = "listar_incidencias"
	PermVerIncidencia     = "ver_incidencia"
	PermFiltros           = "filtros"
)

// Consulta returns the permission name guarding a read view.
func Consulta(nombre string) string {
	return "consulta:" + nombre
}

func lectura() []string {
	return []string{
		PermListarIncidencias,
		PermVerIncidencia,
		PermFiltros,
		Consulta(acciones.ConsultaDetalle),
		Consulta(acciones.ConsultaHistorial),
		Consulta(acciones.ConsultaCasos),
		Consulta(acciones.ConsultaPresupuestos),
		Consulta(acciones.ConsultaComentarios),
		Consulta(acciones.ConsultaDocumentos),
	}
}

// DefaultPolicy maps each role to the actions it may run. Ownership of a
// provider case is still enforced inside the use cases.
func DefaultPolicy() map[domain.Rol][]string {
	return map[domain.Rol][]string{
		domain.RolControl: {"*"},
		domain.RolSistema: {"*"},
		domain.RolCliente: append(lectura(),
			acciones.CrearIncidencia,
			acciones.PonerIncidenciaEnEspera,
			acciones.ReabrirIncidencia,
			acciones.AnularIncidencia,
			acciones.Comentar,
		),
		domain.RolProveedor: append(lectura(),
			acciones.Comentar,
			acciones.PonerCasoEnEspera,
			acciones.ReanudarCaso,
			acciones.OfertarPresupuesto,
			acciones.ValoracionEconomica,
			acciones.ResolverIncidencia,
			acciones.CalendarizarVisita,
		),
	}
}

// Authorizer answers (rol, action) questions through a casbin enforcer.
type Authorizer struct {
	enforcer *casbin.Enforcer
	logger   *zap.Logger
}

func NewAuthorizer(policy map[domain.Rol][]string, logger *zap.Logger) (*Authorizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parsing rbac model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("creating enforcer: %w", err)
	}
	for rol, acts := range policy {
		for _, act := range acts {
			if _, err := enforcer.AddPolicy(string(rol), act); err != nil {
				return nil, fmt.Errorf("adding policy %s/%s: %w", rol, act, err)
			}
		}
	}
	return &Authorizer{enforcer: enforcer, logger: logger}, nil
}

// Allowed reports whether rol may run accion.
func (a *Authorizer) Allowed(rol domain.Rol, accion string) bool {
	ok, err := a.enforcer.Enforce(string(rol), accion)
	if err != nil {
		a.logger.Error("policy evaluation failed", zap.String("rol", string(rol)), zap.String("accion", accion), zap.Error(err))
		return false
	}
	return ok
}

// Require builds a middleware that resolves the action name from the request
// and rejects actors whose role may not run it.
func (a *Authorizer) Require(accion func(ctx *fasthttp.RequestCtx) string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			actor, ok := httpcontext.ActorFromRequest(ctx)
			if !ok {
				reject(ctx, fasthttp.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}
			name := accion(ctx)
			if !a.Allowed(actor.Rol, name) {
				a.logger.Info("action denied",
					zap.String("persona_id", actor.PersonaID),
					zap.String("rol", string(actor.Rol)),
					zap.String("accion", name))
				reject(ctx, fasthttp.StatusForbidden, domain.ErrForbidden)
				return
			}
			next(ctx)
		}
	}
}

// Static is a helper for routes guarded by a fixed permission.
func Static(name string) func(*fasthttp.RequestCtx) string {
	return func(*fasthttp.RequestCtx) string { return name }
}

// FromPath reads the action name from a router path parameter, with an
// optional prefix.
func FromPath(param, prefix string) func(*fasthttp.RequestCtx) string {
	return func(ctx *fasthttp.RequestCtx) string {
		v, _ := ctx.UserValue(param).(string)
		return prefix + v
	}
}
