package arca

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
)

// IssuedVoucher datos con que ARCA registró un comprobante (ResultGet de FECompConsultar).
type IssuedVoucher struct {
	CustomerDocType   int
	CustomerDocNumber int64
	Total             decimal.Decimal
	Date              string // YYYYMMDD
}

// Matches indica si el comprobante registrado corresponde a la factura: mismo documento del
// receptor, mismo total y misma fecha. Sólo entonces su CAE puede adoptarse como propio.
func (v IssuedVoucher) Matches(inv *entity.Invoice, doc CustomerDocument) bool {
	if inv == nil {
		return false
	}
	return v.CustomerDocType == doc.Type &&
		v.CustomerDocNumber == doc.Number &&
		v.Total.Equal(inv.Total.Round(2)) &&
		v.Date == inv.Date.Format("20060102")
}
