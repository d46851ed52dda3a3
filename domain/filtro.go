package domain

import "time"

// FiltroIncidencias is the caller-owned list/view state. It is passed explicitly
// into list queries and may be persisted per persona.
type FiltroIncidencias struct {
	EstadoCliente   EstadoCliente   `json:"estado_cliente,omitempty"`
	EstadoProveedor EstadoProveedor `json:"estado_proveedor,omitempty"`
	Centro          string          `json:"centro,omitempty"`
	ProveedorID     string          `json:"proveedor_id,omitempty"`
	Busqueda        string          `json:"busqueda,omitempty"`
	SoloActivas     bool            `json:"solo_activas,omitempty"`
	Limit           int             `json:"limit,omitempty"`
	Offset          int             `json:"offset,omitempty"`
}

// VistaGuardada is a persisted FiltroIncidencias for one persona.
type VistaGuardada struct {
	PersonaID string            `json:"persona_id"`
	Filtro    FiltroIncidencias `json:"filtro"`
	UpdatedAt time.Time         `json:"updated_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func (v *VistaGuardada) IsExpired(reference time.Time) bool {
	if v == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !v.ExpiresAt.After(reference)
}
