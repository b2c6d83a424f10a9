package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ARCAMessage código y mensaje devueltos por ARCA (observaciones de un CAE otorgado).
type ARCAMessage struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// RetryCAEResponse respuesta de POST /api/companies/:companyID/invoices/:id/cae/retry.
type RetryCAEResponse struct {
	InvoiceID    string        `json:"invoice_id"`
	Outcome      string        `json:"outcome"` // authorized | recovered | already_authorized
	Status       string        `json:"status"`
	CAE          string        `json:"cae"`
	CAEExpiry    string        `json:"cae_expiry"`
	PointOfSale  int           `json:"point_of_sale"`
	DocumentType int           `json:"document_type"`
	Sequence     int64         `json:"sequence"`
	Corrections  []string      `json:"corrections,omitempty"`
	Observations []ARCAMessage `json:"observations,omitempty"`
}

// RetryBatchRequest body opcional de POST /api/arca/cae/retry-batch.
type RetryBatchRequest struct {
	Limit  int    `json:"limit"`
	Source string `json:"source"`
}

// BatchItemResponse resultado por factura del lote.
type BatchItemResponse struct {
	InvoiceID string `json:"invoice_id"`
	CompanyID string `json:"company_id"`
	Outcome   string `json:"outcome"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RetryBatchResponse totales de la corrida.
type RetryBatchResponse struct {
	Processed  int                 `json:"processed"`
	Authorized int                 `json:"authorized"`
	Rejected   int                 `json:"rejected"`
	Skipped    int                 `json:"skipped"`
	Pending    int                 `json:"pending"`
	Errors     int                 `json:"errors"`
	Mock       bool                `json:"mock"`
	Source     string              `json:"source"`
	Items      []BatchItemResponse `json:"items"`
}

// CertificateIssue observación del validador.
type CertificateIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CertificateDetails datos del certificado leído.
type CertificateDetails struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	KeyAlgorithm string    `json:"key_algorithm"`
	CUIT         string    `json:"cuit,omitempty"`
}

// CertificateCheckResponse respuesta de POST /api/companies/:companyID/arca/certificate/validate.
type CertificateCheckResponse struct {
	CompanyID    string              `json:"company_id"`
	CUIT         string              `json:"cuit"`
	CUITValid    bool                `json:"cuit_valid"`
	Environment  string              `json:"environment"`
	PointOfSale  int                 `json:"point_of_sale"`
	OK           bool                `json:"ok"`
	CanAuthorize bool                `json:"can_authorize"`
	Details      *CertificateDetails `json:"details,omitempty"`
	Issues       []CertificateIssue  `json:"issues"`
}

// LibroIVARequest body de POST /api/companies/:companyID/arca/libro-iva.
type LibroIVARequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// TaxRateSummaryResponse acumulado por alícuota.
type TaxRateSummaryResponse struct {
	AlicuotaID int             `json:"alicuota_id"`
	Base       decimal.Decimal `json:"base"`
	Tax        decimal.Decimal `json:"tax"`
	Count      int             `json:"count"`
}

// LibroIVAResponse respuesta JSON de la exportación. Con Accept: text/plain se descarga el archivo.
type LibroIVAResponse struct {
	Filename string                   `json:"filename"`
	Checksum string                   `json:"checksum"`
	Sales    int                      `json:"sales"`
	Voided   int                      `json:"voided"`
	Records  int                      `json:"records"`
	Net      decimal.Decimal          `json:"net"`
	Tax      decimal.Decimal          `json:"tax"`
	Total    decimal.Decimal          `json:"total"`
	Rates    []TaxRateSummaryResponse `json:"rates"`
	Content  string                   `json:"content"`
}
