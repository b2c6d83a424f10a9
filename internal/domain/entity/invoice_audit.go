package entity

import (
	"encoding/json"
	"time"
)

// Acciones registradas en la auditoría de autorización.
const (
	AuditActionCAEAuthorized    = "CAE_AUTHORIZED"
	AuditActionCAERejected      = "CAE_REJECTED"
	AuditActionCAERecovered     = "CAE_RECOVERED"      // CAE ya existente en ARCA recuperado por el sondeo
	AuditActionDocTypeCorrected = "DOC_TYPE_CORRECTED" // corrección del tipo de comprobante antes de solicitar
	AuditActionCAEPending       = "CAE_PENDING"        // ARCA (o el simulador) no dio resultado definitivo
)

// Origen del intento.
const (
	AuditSourceManual = "manual"
	AuditSourceBatch  = "batch"
	AuditSourceCron   = "cron"
)

// InvoiceAudit fila de auditoría de sólo inserción. Nunca se actualiza ni se borra.
type InvoiceAudit struct {
	ID        string
	InvoiceID string
	CompanyID string
	Action    string
	Request   json.RawMessage // identificadores enviados (pto vta, tipo, número, doc)
	Response  json.RawMessage // respuesta estructurada de ARCA
	Actor     string          // usuario u operador que disparó el intento
	Source    string
	CreatedAt time.Time
}
