package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/incidencias/api/transport"
	"github.com/fastygo/incidencias/domain"
	"github.com/fastygo/incidencias/pkg/httpcontext"
)

// Claims is the token payload identifying the workflow actor.
type Claims struct {
	PersonaID string `json:"persona_id"`
	Email     string `json:"email"`
	Rol       string `json:"rol"`
	jwt.RegisteredClaims
}

var errMissingClaims = errors.New("token without persona_id or rol")

// JWTAuth validates HS256 bearer tokens and stores the actor on the request.
// An empty issuer skips the issuer check.
func JWTAuth(secret, issuer string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				reject(ctx, fasthttp.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}

			actor, err := ParseActor(tokenString, secret, issuer)
			if err != nil {
				logger.Warn("invalid jwt token", zap.Error(err))
				reject(ctx, fasthttp.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}

			httpcontext.SetActor(ctx, actor)
			next(ctx)
		}
	}
}

// ParseActor verifies tokenString and maps its claims onto an Actor.
func ParseActor(tokenString, secret, issuer string) (domain.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Actor{}, err
	}
	if !token.Valid {
		return domain.Actor{}, errors.New("token not valid")
	}
	if issuer != "" && !claims.VerifyIssuer(issuer, true) {
		return domain.Actor{}, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}

	rol, ok := domain.ParseRol(claims.Rol)
	if !ok || strings.TrimSpace(claims.PersonaID) == "" {
		return domain.Actor{}, errMissingClaims
	}
	return domain.Actor{
		PersonaID: strings.TrimSpace(claims.PersonaID),
		Email:     claims.Email,
		Rol:       rol,
	}, nil
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

func reject(ctx *fasthttp.RequestCtx, status int, err *domain.Error) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBodyString(transport.NewError(string(err.Code), err.Message, nil).String())
}
