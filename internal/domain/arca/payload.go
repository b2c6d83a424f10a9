package arca

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

// ErrInvalidPayload la factura no permite armar una solicitud de CAE.
var ErrInvalidPayload = errors.New("arca: datos de factura inválidos para solicitar CAE")

// AlicuotaIVA línea del desglose de IVA (AlicIva del WSFE).
type AlicuotaIVA struct {
	ID      int
	BaseImp decimal.Decimal
	Importe decimal.Decimal
}

// CAERequest detalle de un comprobante para FECAESolicitar.
type CAERequest struct {
	PointOfSale  int
	DocumentType int
	Sequence     int64
	Concept      int

	CustomerDocType        int
	CustomerDocNumber      int64
	CustomerName           string
	CondicionIVAReceptorID int

	Date string // YYYYMMDD

	Taxable      decimal.Decimal // ImpNeto
	Tax          decimal.Decimal // ImpIVA
	Total        decimal.Decimal // ImpTotal
	Currency     string
	CurrencyRate decimal.Decimal
	IVA          []AlicuotaIVA // vacío en comprobantes clase C
}

// BuildCAERequest arma la solicitud para la factura con el tipo, número y documento ya determinados.
// Base imponible = max(subtotal - descuento, 0). Una única línea de alícuota, tomada de la tasa
// declarada o inferida de impuesto/base cuando la declarada no está en el catálogo.
func BuildCAERequest(inv *entity.Invoice, pointOfSale, documentType int, sequence int64, doc CustomerDocument) (*CAERequest, error) {
	if inv == nil {
		return nil, fmt.Errorf("%w: factura nula", ErrInvalidPayload)
	}
	if pointOfSale <= 0 || sequence <= 0 || !afip.IsKnownCbte(documentType) {
		return nil, fmt.Errorf("%w: pto vta %d, tipo %d, número %d", ErrInvalidPayload, pointOfSale, documentType, sequence)
	}
	if inv.Date.IsZero() {
		return nil, fmt.Errorf("%w: factura sin fecha", ErrInvalidPayload)
	}
	if inv.Subtotal.IsNegative() || inv.Discount.IsNegative() || inv.TaxAmount.IsNegative() || inv.Total.IsNegative() {
		return nil, fmt.Errorf("%w: importes negativos", ErrInvalidPayload)
	}

	taxable := inv.TaxableAmount().Round(2)
	tax := inv.TaxAmount.Round(2)

	req := &CAERequest{
		PointOfSale:            pointOfSale,
		DocumentType:           documentType,
		Sequence:               sequence,
		Concept:                afip.ConceptoProductos,
		CustomerDocType:        doc.Type,
		CustomerDocNumber:      doc.Number,
		CustomerName:           inv.CustomerName,
		CondicionIVAReceptorID: afip.CondicionIVAReceptorID(afip.NormalizeCondicionIVA(inv.CustomerTaxCondition)),
		Date:                   inv.Date.Format("20060102"),
		Taxable:                taxable,
		Tax:                    tax,
		Total:                  inv.Total.Round(2),
		Currency:               afip.MonedaPesos,
		CurrencyRate:           decimal.NewFromInt(1),
	}

	// Clase C: ARCA rechaza el desglose de IVA.
	if afip.CbteClass(documentType) == afip.ClassC {
		req.Tax = decimal.Zero
		return req, nil
	}

	req.IVA = []AlicuotaIVA{{
		ID:      AlicuotaFor(inv.TaxRate, taxable, tax),
		BaseImp: taxable,
		Importe: tax,
	}}
	return req, nil
}

// AlicuotaFor código de alícuota para la tasa declarada o, si no se reconoce, la inferida de los importes.
func AlicuotaFor(rate, taxable, tax decimal.Decimal) int {
	if rate.IsPositive() {
		if id := afip.AlicuotaID(rate); id != afip.AlicuotaIndefinida {
			return id
		}
	}
	return afip.AlicuotaID(afip.InferRate(taxable, tax))
}
