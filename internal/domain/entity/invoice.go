package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canal de emisión de la factura.
const (
	ChannelARCA     = "ARCA"     // requiere CAE de ARCA
	ChannelInternal = "INTERNAL" // comprobante interno, no fiscal
)

// Estados de ciclo de vida de la factura.
const (
	InvoiceStatusPendingCAE = "PENDING_CAE"
	InvoiceStatusAuthorized = "AUTHORIZED" // terminal
	InvoiceStatusRejected   = "REJECTED"   // reintentable
	InvoiceStatusCancelled  = "CANCELLED"  // terminal, nunca vuelve a reintento
)

// Estados del sub-registro fiscal.
const (
	FiscalStatusPending    = "PENDING"
	FiscalStatusAuthorized = "AUTHORIZED"
	FiscalStatusRejected   = "REJECTED"
)

// LegacyPendingStatuses valores históricos del campo de estado heredado que indican CAE pendiente.
var LegacyPendingStatuses = []string{"PENDING_CAE", "PENDIENTE", "PENDIENTE_CAE", "ERROR_CAE"}

// FiscalData sub-registro fiscal de la factura. Los ceros equivalen a "sin dato".
type FiscalData struct {
	DocumentType     int    // código de comprobante (1 = Factura A, 6 = Factura B, ...)
	PointOfSale      int    // punto de venta habilitado en ARCA
	Sequence         int64  // número de comprobante asignado por ARCA
	CAE              string
	CAEExpiry        string // YYYYMMDD
	Status           string // PENDING, AUTHORIZED, REJECTED
	LastResponseAt   *time.Time
	LastErrorCode    string
	LastErrorMessage string
}

// Invoice representa un comprobante fiscal con su snapshot de cliente.
type Invoice struct {
	ID        string
	CompanyID string
	Number    string // numeración interna
	Channel   string
	Date      time.Time

	CustomerName         string
	CustomerTaxID        string // CUIT/CUIL/DNI tal como se cargó
	CustomerTaxCondition string // condición frente al IVA declarada (RESPONSABLE_INSCRIPTO, MONOTRIBUTO, ...)

	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
	TaxRate   decimal.Decimal // porcentaje (21, 10.5); cero si no se declaró

	Status       string
	LegacyStatus string
	RetryCount   int
	Fiscal       FiscalData

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsARCA indica si la factura se emite por el canal fiscal.
func (i *Invoice) IsARCA() bool {
	return strings.EqualFold(i.Channel, ChannelARCA)
}

// IsAuthorized indica si la factura ya tiene CAE otorgado.
func (i *Invoice) IsAuthorized() bool {
	return i.Status == InvoiceStatusAuthorized && i.Fiscal.CAE != ""
}

// IsCancelled indica si la factura está anulada.
func (i *Invoice) IsCancelled() bool {
	return i.Status == InvoiceStatusCancelled
}

// HasFiscalKey indica si la factura tiene punto de venta, tipo y número asignados por un intento previo.
func (i *Invoice) HasFiscalKey() bool {
	return i.Fiscal.PointOfSale > 0 && i.Fiscal.DocumentType > 0 && i.Fiscal.Sequence > 0
}

// HasUnconfirmedKey indica si la clave fiscal quedó de un intento sin respuesta definitiva (pedido
// enviado cuya respuesta se perdió, o clave cargada por otro sistema). Un número rechazado por ARCA
// no queda consumido y puede estar asignado a otra factura.
func (i *Invoice) HasUnconfirmedKey() bool {
	return i.HasFiscalKey() && i.Fiscal.Status != FiscalStatusRejected
}

// IsPendingCAE indica si la factura espera autorización según cualquiera de sus tres campos de estado.
// Las rechazadas siguen siendo reintentables.
func (i *Invoice) IsPendingCAE() bool {
	if i.IsCancelled() || i.IsAuthorized() {
		return false
	}
	if i.Status == InvoiceStatusPendingCAE || i.Status == InvoiceStatusRejected || i.Fiscal.Status == FiscalStatusPending {
		return true
	}
	legacy := strings.ToUpper(strings.TrimSpace(i.LegacyStatus))
	for _, s := range LegacyPendingStatuses {
		if legacy == s {
			return true
		}
	}
	return false
}

// TaxableAmount base imponible: subtotal menos descuento, nunca negativa.
func (i *Invoice) TaxableAmount() decimal.Decimal {
	t := i.Subtotal.Sub(i.Discount)
	if t.IsNegative() {
		return decimal.Zero
	}
	return t
}
