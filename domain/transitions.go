package domain

// Via distinguishes forward workflow moves from rejection reverts.
type Via string

const (
	ViaAvance  Via = "avance"
	ViaRechazo Via = "rechazo"
)

var transicionesCliente = map[EstadoCliente]map[EstadoCliente]bool{
	ClienteAbierta:  {ClienteEnEspera: true, ClienteCerrada: true, ClienteAnulada: true},
	ClienteEnEspera: {ClienteAbierta: true, ClienteAnulada: true},
}

var transicionesProveedor = map[EstadoProveedor]map[EstadoProveedor]bool{
	ProveedorAsignada: {ProveedorOfertada: true, ProveedorAnulada: true, ProveedorEnEspera: true, ProveedorResuelta: true},
	ProveedorOfertada: {ProveedorResuelta: true, ProveedorAnulada: true, ProveedorEnEspera: true, ProveedorCerrada: true},
	// Resuelta -> Cerrada is only taken under PoliticaCierre.CierreSinValoracion.
	ProveedorResuelta: {ProveedorValorada: true, ProveedorAnulada: true, ProveedorEnEspera: true, ProveedorCerrada: true},
	ProveedorValorada: {ProveedorCerrada: true, ProveedorAnulada: true},
	// En espera returns to the state it paused; the caller checks EstadoPrevio.
	ProveedorEnEspera: {ProveedorAsignada: true, ProveedorOfertada: true, ProveedorResuelta: true, ProveedorAnulada: true},
}

var rechazosProveedor = map[EstadoProveedor]map[EstadoProveedor]bool{
	ProveedorOfertada: {ProveedorAsignada: true},
	ProveedorResuelta: {ProveedorOfertada: true, ProveedorAsignada: true},
	ProveedorValorada: {ProveedorResuelta: true, ProveedorOfertada: true, ProveedorAsignada: true},
}

var transicionesPresupuesto = map[EstadoPresupuesto]map[EstadoPresupuesto]bool{
	PresupuestoPendiente: {PresupuestoAprobado: true, PresupuestoRechazado: true},
	PresupuestoAprobado:  {PresupuestoRechazado: true},
}

// ValidarTransicionCliente rejects any client-track move not in the table.
func ValidarTransicionCliente(from, to EstadoCliente) error {
	if from.IsTerminal() {
		return Preconditionf("la incidencia está %s y no admite más cambios", from)
	}
	if !transicionesCliente[from][to] {
		return Preconditionf("transición de incidencia no permitida: %s -> %s", from, to)
	}
	return nil
}

// ValidarTransicionProveedor rejects any provider-track move not in the table
// for the given via.
func ValidarTransicionProveedor(from, to EstadoProveedor, via Via) error {
	if from.IsTerminal() {
		return Preconditionf("el caso de proveedor está %s y no admite más cambios", from)
	}
	table := transicionesProveedor
	if via == ViaRechazo {
		table = rechazosProveedor
	}
	if !table[from][to] {
		return Preconditionf("transición de proveedor no permitida: %s -> %s", from, to)
	}
	return nil
}

// ValidarTransicionPresupuesto guards presupuesto review moves.
func ValidarTransicionPresupuesto(from, to EstadoPresupuesto) error {
	if !transicionesPresupuesto[from][to] {
		return Preconditionf("el presupuesto está %s y no puede pasar a %s", from, to)
	}
	return nil
}

// DestinoRechazo returns where a rejection sends the provider track. Technical
// scope returns to the stage before resolution, economic scope to the stage
// before valuation, and both scopes to the start of the case.
func DestinoRechazo(from EstadoProveedor, tipo TipoRechazo, tieneOfertaAprobada bool) (EstadoProveedor, error) {
	if !tipo.Valid() {
		return "", Validationf("tipo de rechazo no válido: %q", tipo)
	}
	preResolucion := ProveedorAsignada
	if tieneOfertaAprobada && tipo == RechazoTecnica {
		preResolucion = ProveedorOfertada
	}

	var to EstadoProveedor
	switch from {
	case ProveedorOfertada:
		to = ProveedorAsignada
	case ProveedorResuelta:
		if tipo == RechazoEconomica {
			return "", Preconditionf("el caso aún no tiene valoración económica que rechazar")
		}
		to = preResolucion
	case ProveedorValorada:
		switch tipo {
		case RechazoEconomica:
			to = ProveedorResuelta
		case RechazoTecnica:
			to = preResolucion
		default:
			to = ProveedorAsignada
		}
	default:
		return "", Preconditionf("no se puede rechazar un caso en estado %s", from)
	}

	if err := ValidarTransicionProveedor(from, to, ViaRechazo); err != nil {
		return "", err
	}
	return to, nil
}

// PuedeCerrarCliente enforces that the client track only closes together with
// the provider track or without any active case.
func PuedeCerrarCliente(activo *ProveedorCaso) error {
	if activo == nil || activo.EstadoProveedor == ProveedorCerrada {
		return nil
	}
	return Preconditionf("el caso de proveedor activo está %s; la incidencia no puede cerrarse", activo.EstadoProveedor)
}

// VerificarCierreConjunto checks the closed-together invariant on a snapshot.
func VerificarCierreConjunto(inc *Incidencia, activo *ProveedorCaso) error {
	if inc == nil || inc.EstadoCliente != ClienteCerrada {
		return nil
	}
	return PuedeCerrarCliente(activo)
}

// PoliticaCierre holds the named workflow policy flags for closure.
type PoliticaCierre struct {
	// CierreSinValoracion allows Control to close a Resuelta case that was
	// resolved without an approved offer, skipping the valuation step.
	CierreSinValoracion bool
}

// MotivoCierrePorDefecto is used when Control closes without a motivo.
const MotivoCierrePorDefecto = "Cierre de incidencia"
