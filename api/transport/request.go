package transport

import "github.com/fastygo/incidencias/domain"

// FiltroRequest is the body of PUT /api/v1/filtros.
type FiltroRequest struct {
	EstadoCliente   string `json:"estado_cliente"`
	EstadoProveedor string `json:"estado_proveedor"`
	Centro          string `json:"centro"`
	ProveedorID     string `json:"proveedor_id"`
	Busqueda        string `json:"busqueda"`
	SoloActivas     bool   `json:"solo_activas"`
	Limit           int    `json:"limit"`
	Offset          int    `json:"offset"`
}

func (r FiltroRequest) ToDomain() domain.FiltroIncidencias {
	return domain.FiltroIncidencias{
		EstadoCliente:   domain.EstadoCliente(r.EstadoCliente),
		EstadoProveedor: domain.EstadoProveedor(r.EstadoProveedor),
		Centro:          r.Centro,
		ProveedorID:     r.ProveedorID,
		Busqueda:        r.Busqueda,
		SoloActivas:     r.SoloActivas,
		Limit:           r.Limit,
		Offset:          r.Offset,
	}
}
