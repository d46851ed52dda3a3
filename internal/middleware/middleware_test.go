package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/pkg/httpcontext"
	"github.com/fastygo/incidencias/usecase/acciones"
)

const testSecret = "s3cr3t"

func signToken(t *testing.T, claims Claims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return tok
}

func validClaims() Claims {
	return Claims{
		PersonaID: "33333333-3333-3333-3333-333333333333",
		Email:     "prov@example.com",
		Rol:       "Proveedor",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "incidencias",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestParseActor(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noRol := validClaims()
	noRol.Rol = "admin"
	noPersona := validClaims()
	noPersona.PersonaID = " "

	tests := []struct {
		name    string
		token   string
		issuer  string
		wantErr bool
	}{
		{"valid", signToken(t, validClaims(), jwt.SigningMethodHS256, []byte(testSecret)), "incidencias", false},
		{"issuer not checked", signToken(t, validClaims(), jwt.SigningMethodHS256, []byte(testSecret)), "", false},
		{"wrong issuer", signToken(t, validClaims(), jwt.SigningMethodHS256, []byte(testSecret)), "otro", true},
		{"wrong secret", signToken(t, validClaims(), jwt.SigningMethodHS256, []byte("nope")), "", true},
		{"expired", signToken(t, expired, jwt.SigningMethodHS256, []byte(testSecret)), "", true},
		{"unknown rol", signToken(t, noRol, jwt.SigningMethodHS256, []byte(testSecret)), "", true},
		{"blank persona", signToken(t, noPersona, jwt.SigningMethodHS256, []byte(testSecret)), "", true},
		{"none alg", signToken(t, validClaims(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor, err := ParseActor(tt.token, testSecret, tt.issuer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (actor.Rol != domain.RolProveedor || actor.PersonaID != "33333333-3333-3333-3333-333333333333") {
				t.Errorf("actor = %+v", actor)
			}
		})
	}
}

func TestJWTAuth(t *testing.T) {
	var reached bool
	var got domain.Actor
	handler := JWTAuth(testSecret, "incidencias", nil)(func(ctx *fasthttp.RequestCtx) {
		reached = true
		got, _ = httpcontext.ActorFromRequest(ctx)
	})

	var ctx fasthttp.RequestCtx
	handler(&ctx)
	if reached || ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("missing token: reached=%v status=%d", reached, ctx.Response.StatusCode())
	}

	var authed fasthttp.RequestCtx
	authed.Request.Header.Set("Authorization", "Bearer "+signToken(t, validClaims(), jwt.SigningMethodHS256, []byte(testSecret)))
	handler(&authed)
	if !reached {
		t.Fatal("handler not reached with a valid token")
	}
	if got.Email != "prov@example.com" || got.Rol != domain.RolProveedor {
		t.Errorf("actor = %+v", got)
	}
}

func TestAuthorizer_DefaultPolicy(t *testing.T) {
	authz, err := NewAuthorizer(DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	tests := []struct {
		rol    domain.Rol
		accion string
		want   bool
	}{
		{domain.RolControl, acciones.CerrarIncidencia, true},
		{domain.RolControl, acciones.AprobarPresupuesto, true},
		{domain.RolSistema, acciones.AnularAsignacion, true},
		{domain.RolCliente, acciones.CrearIncidencia, true},
		{domain.RolCliente, acciones.AprobarPresupuesto, false},
		{domain.RolCliente, acciones.AsignarProveedor, false},
		{domain.RolProveedor, acciones.OfertarPresupuesto, true},
		{domain.RolProveedor, acciones.ValoracionEconomica, true},
		{domain.RolProveedor, acciones.AprobarPresupuesto, false},
		{domain.RolProveedor, acciones.CerrarIncidencia, false},
		{domain.RolProveedor, Consulta(acciones.ConsultaHistorial), true},
		{domain.RolCliente, Consulta(acciones.ConsultaDocumentos), true},
		{"", acciones.Comentar, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.rol)+"/"+tt.accion, func(t *testing.T) {
			if got := authz.Allowed(tt.rol, tt.accion); got != tt.want {
				t.Errorf("Allowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorizer_Require(t *testing.T) {
	authz, err := NewAuthorizer(DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	var calls int
	handler := authz.Require(FromPath("accion", ""))(func(*fasthttp.RequestCtx) { calls++ })

	var anon fasthttp.RequestCtx
	handler(&anon)
	if anon.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("anonymous status = %d", anon.Response.StatusCode())
	}

	var denied fasthttp.RequestCtx
	httpcontext.SetActor(&denied, domain.Actor{PersonaID: "p", Rol: domain.RolProveedor})
	denied.SetUserValue("accion", acciones.CerrarIncidencia)
	handler(&denied)
	if denied.Response.StatusCode() != fasthttp.StatusForbidden {
		t.Errorf("denied status = %d", denied.Response.StatusCode())
	}

	var allowed fasthttp.RequestCtx
	httpcontext.SetActor(&allowed, domain.Actor{PersonaID: "c", Rol: domain.RolControl})
	allowed.SetUserValue("accion", acciones.CerrarIncidencia)
	handler(&allowed)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
