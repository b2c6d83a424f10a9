// Package afip contiene catálogos y validaciones alineados a las tablas paramétricas
// del web service de factura electrónica WSFEv1 de ARCA (ex AFIP, Argentina).
package afip

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Tipos de comprobante (FEParamGetTiposCbte)
// =============================================================================

const (
	CbteFacturaA     = 1
	CbteNotaDebitoA  = 2
	CbteNotaCreditoA = 3
	CbteFacturaB     = 6
	CbteNotaDebitoB  = 7
	CbteNotaCreditoB = 8
	CbteFacturaC     = 11
	CbteNotaDebitoC  = 12
	CbteNotaCreditoC = 13
)

// Clase de comprobante: A (requiere CUIT del receptor), B (consumidor final / no RI), C (emisor monotributista).
const (
	ClassUnknown = ""
	ClassA       = "A"
	ClassB       = "B"
	ClassC       = "C"
)

var cbteClass = map[int]string{
	CbteFacturaA: ClassA, CbteNotaDebitoA: ClassA, CbteNotaCreditoA: ClassA,
	CbteFacturaB: ClassB, CbteNotaDebitoB: ClassB, CbteNotaCreditoB: ClassB,
	CbteFacturaC: ClassC, CbteNotaDebitoC: ClassC, CbteNotaCreditoC: ClassC,
}

// contrapartida clase A -> clase B del mismo documento (factura, nota de débito, nota de crédito).
var classBCounterpart = map[int]int{
	CbteFacturaA:     CbteFacturaB,
	CbteNotaDebitoA:  CbteNotaDebitoB,
	CbteNotaCreditoA: CbteNotaCreditoB,
}

// CbteClass devuelve la clase (A, B, C) del tipo de comprobante o ClassUnknown.
func CbteClass(cbteTipo int) string {
	return cbteClass[cbteTipo]
}

// IsKnownCbte indica si el tipo de comprobante está en el catálogo soportado.
func IsKnownCbte(cbteTipo int) bool {
	_, ok := cbteClass[cbteTipo]
	return ok
}

// ConsumerCounterpart devuelve el equivalente clase B de un comprobante clase A.
// Para cualquier otro tipo devuelve el mismo código.
func ConsumerCounterpart(cbteTipo int) int {
	if b, ok := classBCounterpart[cbteTipo]; ok {
		return b
	}
	return cbteTipo
}

// =============================================================================
// Tipos de documento del receptor (FEParamGetTiposDoc)
// =============================================================================

const (
	DocTipoCUIT            = 80
	DocTipoCUIL            = 86
	DocTipoDNI             = 96
	DocTipoConsumidorFinal = 99
)

// =============================================================================
// Condición frente al IVA del receptor (FEParamGetCondicionIvaReceptor, RG 5616)
// =============================================================================

const (
	CondicionResponsableInscripto = "RESPONSABLE_INSCRIPTO"
	CondicionExento               = "EXENTO"
	CondicionConsumidorFinal      = "CONSUMIDOR_FINAL"
	CondicionMonotributo          = "MONOTRIBUTO"
	CondicionNoCategorizado       = "NO_CATEGORIZADO"
	CondicionNoAlcanzado          = "NO_ALCANZADO"
	CondicionSujetoNoCategorizado = "SUJETO_NO_CATEGORIZADO"
)

var condicionIVAID = map[string]int{
	CondicionResponsableInscripto: 1,
	CondicionExento:               4,
	CondicionConsumidorFinal:      5,
	CondicionMonotributo:          6,
	CondicionNoCategorizado:       7,
	CondicionSujetoNoCategorizado: 7,
	CondicionNoAlcanzado:          15,
}

// NormalizeCondicionIVA lleva la condición declarada a su forma canónica (mayúsculas, guiones bajos).
// Acepta variantes como "Responsable Inscripto", "responsable-inscripto" o "RI".
func NormalizeCondicionIVA(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "RI", "IVA_RESPONSABLE_INSCRIPTO":
		return CondicionResponsableInscripto
	case "CF":
		return CondicionConsumidorFinal
	case "MT", "RESPONSABLE_MONOTRIBUTO":
		return CondicionMonotributo
	case "IVA_EXENTO":
		return CondicionExento
	}
	return s
}

// IsKnownCondicionIVA indica si la condición (ya normalizada) figura en el catálogo.
func IsKnownCondicionIVA(condicion string) bool {
	_, ok := condicionIVAID[condicion]
	return ok
}

// CondicionIVAReceptorID devuelve el código de condición IVA del receptor para el WSFE.
// Condición vacía o desconocida: consumidor final (5).
func CondicionIVAReceptorID(condicion string) int {
	if id, ok := condicionIVAID[condicion]; ok {
		return id
	}
	return condicionIVAID[CondicionConsumidorFinal]
}

// =============================================================================
// Alícuotas de IVA (FEParamGetTiposIva)
// =============================================================================

const (
	AlicuotaIndefinida  = 0 // reservado: tasa no reconocida
	AlicuotaCero        = 3 // 0 % (exento)
	AlicuotaDiezCinco   = 4 // 10,5 % (reducida)
	AlicuotaVeintiuno   = 5 // 21 % (general)
	AlicuotaVeintisiete = 6 // 27 % (incrementada)
	AlicuotaCinco       = 8 // 5 %
	AlicuotaDosCinco    = 9 // 2,5 %
)

var alicuotas = []struct {
	rate decimal.Decimal
	id   int
}{
	{decimal.Zero, AlicuotaCero},
	{decimal.RequireFromString("2.5"), AlicuotaDosCinco},
	{decimal.NewFromInt(5), AlicuotaCinco},
	{decimal.RequireFromString("10.5"), AlicuotaDiezCinco},
	{decimal.NewFromInt(21), AlicuotaVeintiuno},
	{decimal.NewFromInt(27), AlicuotaVeintisiete},
}

// AlicuotaID devuelve el código de alícuota para una tasa expresada en porcentaje (21, 10.5, ...).
// Tasas fraccionarias (0.21) se aceptan y se llevan a porcentaje. Tasa no reconocida: AlicuotaIndefinida.
func AlicuotaID(ratePercent decimal.Decimal) int {
	r := ratePercent
	if r.GreaterThan(decimal.Zero) && r.LessThan(decimal.NewFromInt(1)) {
		r = r.Mul(decimal.NewFromInt(100))
	}
	r = r.Round(2)
	for _, a := range alicuotas {
		if a.rate.Equal(r) {
			return a.id
		}
	}
	return AlicuotaIndefinida
}

// InferRate estima la tasa (porcentaje) a partir de base imponible e impuesto, redondeada a la
// alícuota conocida más cercana. Con base cero devuelve cero.
func InferRate(taxable, tax decimal.Decimal) decimal.Decimal {
	if !taxable.IsPositive() {
		return decimal.Zero
	}
	raw := tax.Div(taxable).Mul(decimal.NewFromInt(100))
	best := alicuotas[0].rate
	bestDiff := raw.Sub(best).Abs()
	for _, a := range alicuotas[1:] {
		if d := raw.Sub(a.rate).Abs(); d.LessThan(bestDiff) {
			best, bestDiff = a.rate, d
		}
	}
	return best
}

// =============================================================================
// Otros valores fijos del WSFEv1
// =============================================================================

const (
	ConceptoProductos = 1
	MonedaPesos       = "PES"

	ResultadoAprobado  = "A"
	ResultadoRechazado = "R"
	ResultadoParcial   = "P"

	// ErrCodeCbteInexistente lo devuelve FECompConsultar cuando el comprobante no existe.
	ErrCodeCbteInexistente = "602"
)
