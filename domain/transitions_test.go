package domain

import "testing"

func TestValidarTransicionProveedor_Avance(t *testing.T) {
	tests := []struct {
		from, to EstadoProveedor
		ok       bool
	}{
		{ProveedorAsignada, ProveedorOfertada, true},
		{ProveedorAsignada, ProveedorResuelta, true},
		{ProveedorAsignada, ProveedorEnEspera, true},
		{ProveedorAsignada, ProveedorAnulada, true},
		{ProveedorAsignada, ProveedorValorada, false},
		{ProveedorAsignada, ProveedorCerrada, false},
		{ProveedorOfertada, ProveedorResuelta, true},
		{ProveedorOfertada, ProveedorCerrada, true},
		{ProveedorOfertada, ProveedorValorada, false},
		{ProveedorResuelta, ProveedorValorada, true},
		{ProveedorResuelta, ProveedorOfertada, false},
		{ProveedorValorada, ProveedorCerrada, true},
		{ProveedorValorada, ProveedorEnEspera, false},
		{ProveedorEnEspera, ProveedorOfertada, true},
		{ProveedorEnEspera, ProveedorValorada, false},
		{ProveedorCerrada, ProveedorAnulada, false},
		{ProveedorAnulada, ProveedorAsignada, false},
	}

	for _, tt := range tests {
		err := ValidarTransicionProveedor(tt.from, tt.to, ViaAvance)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("%s -> %s: expected error, got nil", tt.from, tt.to)
			} else if !IsDomainError(err, ErrCodePrecondition) {
				t.Errorf("%s -> %s: code = %s, want PRECONDITION", tt.from, tt.to, CodeOf(err))
			}
		}
	}
}

func TestValidarTransicionProveedor_RechazoOnlyViaRechazo(t *testing.T) {
	if err := ValidarTransicionProveedor(ProveedorValorada, ProveedorResuelta, ViaAvance); err == nil {
		t.Error("Valorada -> Resuelta should not be a forward move")
	}
	if err := ValidarTransicionProveedor(ProveedorValorada, ProveedorResuelta, ViaRechazo); err != nil {
		t.Errorf("Valorada -> Resuelta via rechazo: %v", err)
	}
}

func TestValidarTransicionCliente(t *testing.T) {
	tests := []struct {
		from, to EstadoCliente
		ok       bool
	}{
		{ClienteAbierta, ClienteEnEspera, true},
		{ClienteEnEspera, ClienteAbierta, true},
		{ClienteAbierta, ClienteCerrada, true},
		{ClienteAbierta, ClienteAnulada, true},
		{ClienteEnEspera, ClienteAnulada, true},
		{ClienteEnEspera, ClienteCerrada, false},
		{ClienteCerrada, ClienteAbierta, false},
		{ClienteAnulada, ClienteAbierta, false},
		{ClienteCerrada, ClienteAnulada, false},
	}
	for _, tt := range tests {
		err := ValidarTransicionCliente(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Errorf("%s -> %s: err = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
	}
}

func TestDestinoRechazo(t *testing.T) {
	tests := []struct {
		name     string
		from     EstadoProveedor
		tipo     TipoRechazo
		aprobada bool
		want     EstadoProveedor
		wantCode ErrorCode
	}{
		{"oferta rechazada", ProveedorOfertada, RechazoEconomica, false, ProveedorAsignada, ""},
		{"valoracion economica", ProveedorValorada, RechazoEconomica, true, ProveedorResuelta, ""},
		{"valoracion tecnica con oferta", ProveedorValorada, RechazoTecnica, true, ProveedorOfertada, ""},
		{"valoracion tecnica sin oferta", ProveedorValorada, RechazoTecnica, false, ProveedorAsignada, ""},
		{"valoracion ambas", ProveedorValorada, RechazoAmbas, true, ProveedorAsignada, ""},
		{"resolucion tecnica", ProveedorResuelta, RechazoTecnica, true, ProveedorOfertada, ""},
		{"resolucion economica", ProveedorResuelta, RechazoEconomica, true, "", ErrCodePrecondition},
		{"asignada", ProveedorAsignada, RechazoAmbas, false, "", ErrCodePrecondition},
		{"tipo invalido", ProveedorValorada, TipoRechazo("parcial"), false, "", ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DestinoRechazo(tt.from, tt.tipo, tt.aprobada)
			if tt.wantCode != "" {
				if !IsDomainError(err, tt.wantCode) {
					t.Fatalf("err = %v, want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("DestinoRechazo: %v", err)
			}
			if got != tt.want {
				t.Errorf("destino = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVerificarCierreConjunto(t *testing.T) {
	cerrada := &Incidencia{EstadoCliente: ClienteCerrada}

	if err := VerificarCierreConjunto(cerrada, nil); err != nil {
		t.Errorf("manual closure without case: %v", err)
	}
	if err := VerificarCierreConjunto(cerrada, &ProveedorCaso{EstadoProveedor: ProveedorCerrada}); err != nil {
		t.Errorf("closed together: %v", err)
	}
	if err := VerificarCierreConjunto(cerrada, &ProveedorCaso{EstadoProveedor: ProveedorValorada}); err == nil {
		t.Error("expected violation when case is still Valorada")
	}
	abierta := &Incidencia{EstadoCliente: ClienteAbierta}
	if err := VerificarCierreConjunto(abierta, &ProveedorCaso{EstadoProveedor: ProveedorAsignada}); err != nil {
		t.Errorf("open incidencia: %v", err)
	}
}
