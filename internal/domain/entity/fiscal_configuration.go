package entity

import (
	"strings"
	"time"
)

// Entornos de ARCA.
const (
	EnvironmentHomologacion = "homologacion"
	EnvironmentProduccion   = "produccion"
)

// AuthToken ticket de acceso del WSAA (token + sign) con su vencimiento.
type AuthToken struct {
	Token     string
	Sign      string
	ExpiresAt time.Time
}

// IsZero indica que no hay ticket cacheado.
func (t AuthToken) IsZero() bool {
	return t.Token == "" || t.Sign == ""
}

// ValidAt indica si el ticket sigue siendo utilizable en now con el margen de seguridad indicado.
func (t AuthToken) ValidAt(now time.Time, margin time.Duration) bool {
	return !t.IsZero() && t.ExpiresAt.After(now.Add(margin))
}

// FiscalConfiguration configuración fiscal de la empresa ante ARCA (una por empresa).
type FiscalConfiguration struct {
	ID          string
	CompanyID   string
	CUIT        string // CUIT del emisor
	CertPath    string // ruta al certificado X.509 (local o s3://)
	KeyPath     string // ruta a la llave privada
	PointOfSale int    // punto de venta por defecto
	Environment string // homologacion | produccion
	Token       AuthToken
	UpdatedAt   time.Time
}

// IsComplete indica si la empresa puede solicitar CAE: certificado, llave y CUIT presentes.
func (c *FiscalConfiguration) IsComplete() bool {
	return c != nil &&
		strings.TrimSpace(c.CertPath) != "" &&
		strings.TrimSpace(c.KeyPath) != "" &&
		strings.TrimSpace(c.CUIT) != ""
}
