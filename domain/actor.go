package domain

import "strings"

// Rol identifies which side of the workflow an actor acts on.
type Rol string

const (
	RolCliente   Rol = "cliente"
	RolControl   Rol = "control"
	RolProveedor Rol = "proveedor"
	RolSistema   Rol = "sistema"
)

// Actor is the caller-supplied identity recorded on ledger and comment entries.
// The core never authenticates it.
type Actor struct {
	PersonaID string `json:"persona_id"`
	Email     string `json:"email,omitempty"`
	Rol       Rol    `json:"rol"`
}

// SistemaActor is used for transitions triggered without a human actor.
var SistemaActor = Actor{Rol: RolSistema}

func (a Actor) IsSystem() bool {
	return a.Rol == RolSistema || strings.TrimSpace(a.PersonaID) == ""
}

// PersonaRef returns the persona id as a nullable reference.
func (a Actor) PersonaRef() *string {
	if a.IsSystem() {
		return nil
	}
	id := a.PersonaID
	return &id
}

// ParseRol normalizes a role claim.
func ParseRol(raw string) (Rol, bool) {
	switch Rol(strings.ToLower(strings.TrimSpace(raw))) {
	case RolCliente:
		return RolCliente, true
	case RolControl:
		return RolControl, true
	case RolProveedor:
		return RolProveedor, true
	case RolSistema:
		return RolSistema, true
	}
	return "", false
}

// PuedeActuarSobre reports whether the actor may act on caso. Providers only
// act on their own cases.
func (a Actor) PuedeActuarSobre(caso *ProveedorCaso) bool {
	if caso == nil {
		return false
	}
	if a.Rol == RolProveedor {
		return a.PersonaID != "" && a.PersonaID == caso.ProveedorID
	}
	return true
}
