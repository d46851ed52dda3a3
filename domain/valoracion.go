package domain

import "github.com/shopspring/decimal"

// MaxDesviacionIva is the rounding tolerance accepted between the declared
// importe con IVA and the computed one.
var MaxDesviacionIva = decimal.RequireFromString("0.01")

// RequiereJustificativo decides whether a final economic valuation must carry a
// justification document. It is only waived when the valuation reproduces an
// already approved offer with a positive amount.
func RequiereJustificativo(tieneOfertaAprobada bool, importeOferta, importeActual decimal.Decimal) bool {
	if !tieneOfertaAprobada {
		importeOferta = decimal.Zero
	}
	importeHaCambiado := tieneOfertaAprobada && !importeActual.Equal(importeOferta)
	exento := tieneOfertaAprobada && !importeHaCambiado && importeActual.IsPositive()
	return !exento
}

// ImporteConIvaCoherente reports whether conIva equals sinIva*(1+iva/100)
// within MaxDesviacionIva.
func ImporteConIvaCoherente(sinIva, iva, conIva decimal.Decimal) bool {
	factor := decimal.NewFromInt(1).Add(iva.Div(decimal.NewFromInt(100)))
	esperado := sinIva.Mul(factor).Round(2)
	return esperado.Sub(conIva).Abs().LessThanOrEqual(MaxDesviacionIva)
}
