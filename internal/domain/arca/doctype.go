// Package arca contiene las reglas de dominio para solicitar CAE a ARCA: derivación y corrección
// del tipo de comprobante, clasificación del documento del receptor y armado del payload.
// Usa los catálogos de pkg/afip y no realiza I/O.
package arca

import (
	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

// Motivos de corrección del tipo de comprobante.
const (
	ReasonDefault     = "DEFAULT"       // sin tipo guardado; se deriva por presencia de CUIT del cliente
	ReasonNonRIRegime = "NON_RI_REGIME" // receptor no responsable inscripto con Factura A
	ReasonSelfBilling = "SELF_BILLING"  // receptor con la misma CUIT que el emisor
)

// DocTypeInput datos necesarios para derivar el tipo de comprobante.
type DocTypeInput struct {
	StoredType           int    // tipo guardado en la factura; 0 si no tiene
	CustomerTaxID        string // tal como se cargó
	CustomerTaxCondition string // condición frente al IVA declarada
	IssuerCUIT           string
}

// DocTypeDecision resultado de la derivación.
type DocTypeDecision struct {
	Code        int
	StoredType  int
	Reasons     []string
	SelfBilling bool
	// UnknownCondition la condición IVA declarada no figura en el catálogo: requiere extender la política.
	UnknownCondition bool
	Condition        string // condición normalizada
}

// Changed indica que el código derivado difiere del guardado y hay que persistirlo antes de seguir.
func (d DocTypeDecision) Changed() bool {
	return d.Code != d.StoredType
}

// Corrected indica una corrección real sobre un tipo ya guardado (no la derivación inicial).
func (d DocTypeDecision) Corrected() bool {
	return d.StoredType != 0 && d.Changed()
}

// IsSelfBilling indica si el receptor es el propio emisor (misma CUIT, comparando sólo dígitos).
func IsSelfBilling(customerTaxID, issuerCUIT string) bool {
	c := afip.NormalizeCUIT(customerTaxID)
	return c != "" && c == afip.NormalizeCUIT(issuerCUIT)
}

// DeriveDocumentType aplica, en orden:
//  1. tipo guardado o, si no hay, Factura A con CUIT del cliente / Factura B sin ella;
//  2. receptor no responsable inscripto con Factura A -> Factura B;
//  3. autofacturación -> contraparte clase B sin importar la condición declarada.
func DeriveDocumentType(in DocTypeInput) DocTypeDecision {
	d := DocTypeDecision{
		StoredType: in.StoredType,
		Condition:  afip.NormalizeCondicionIVA(in.CustomerTaxCondition),
	}
	d.UnknownCondition = d.Condition != "" && !afip.IsKnownCondicionIVA(d.Condition)

	d.Code = in.StoredType
	if d.Code == 0 {
		d.Code = afip.CbteFacturaB
		if afip.NormalizeCUIT(in.CustomerTaxID) != "" {
			d.Code = afip.CbteFacturaA
		}
		d.Reasons = append(d.Reasons, ReasonDefault)
	}

	if d.Condition != afip.CondicionResponsableInscripto && d.Code == afip.CbteFacturaA {
		d.Code = afip.CbteFacturaB
		d.Reasons = append(d.Reasons, ReasonNonRIRegime)
	}

	if IsSelfBilling(in.CustomerTaxID, in.IssuerCUIT) {
		d.SelfBilling = true
		if b := afip.ConsumerCounterpart(d.Code); b != d.Code {
			d.Code = b
			d.Reasons = append(d.Reasons, ReasonSelfBilling)
		}
	}
	return d
}
