package arca

import (
	"strconv"

	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

// CustomerDocument tipo y número de documento del receptor (DocTipo / DocNro del WSFE).
type CustomerDocument struct {
	Type   int
	Number int64
}

// FinalConsumer documento genérico de consumidor final: DocTipo 99 con número 0.
var FinalConsumer = CustomerDocument{Type: afip.DocTipoConsumidorFinal, Number: 0}

// ClassifyCustomerDocument determina el documento del receptor:
// CUIT de 11 dígitos en comprobante no clase B y sin autofacturación -> CUIT (80);
// clase B o autofacturación -> consumidor final (99, número 0);
// en otro caso DNI (96) con los dígitos cargados.
func ClassifyCustomerDocument(taxID string, documentType int, selfBilling bool) CustomerDocument {
	digits := afip.NormalizeCUIT(taxID)
	consumerGrade := afip.CbteClass(documentType) == afip.ClassB

	if len(digits) == afip.CUITLength && !selfBilling && !consumerGrade {
		n, err := strconv.ParseInt(digits, 10, 64)
		if err == nil {
			return CustomerDocument{Type: afip.DocTipoCUIT, Number: n}
		}
	}
	if consumerGrade || selfBilling || digits == "" {
		return FinalConsumer
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return FinalConsumer
	}
	return CustomerDocument{Type: afip.DocTipoDNI, Number: n}
}
