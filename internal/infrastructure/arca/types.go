// Package arca implementa el cliente de los web services de ARCA: WSAA (ticket de acceso por
// certificado) y WSFEv1 (solicitud y consulta de CAE) sobre SOAP 1.1.
package arca

import (
	"context"
	"fmt"

	arcadomain "github.com/jhoicas/arca-facturacion/internal/domain/arca"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	wsaaURLHomologacion = "https://wsaahomo.afip.gov.ar/ws/services/LoginCms"
	wsaaURLProduccion   = "https://wsaa.afip.gov.ar/ws/services/LoginCms"
	wsfeURLHomologacion = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
	wsfeURLProduccion   = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"

	soapNS     = "http://schemas.xmlsoap.org/soap/envelope/"
	wsaaNS     = "http://wsaa.view.sua.dvadac.desein.afip.gov"
	wsfeNS     = "http://ar.gov.afip.dif.FEV1/"
	wsfeAction = wsfeNS

	// ServiceWSFE nombre del servicio de negocio para el que se pide el ticket.
	ServiceWSFE = "wsfe"
)

// WSAAEndpoint URL de LoginCms para el entorno (homologacion por defecto).
func WSAAEndpoint(environment string) string {
	if environment == entity.EnvironmentProduccion {
		return wsaaURLProduccion
	}
	return wsaaURLHomologacion
}

// WSFEEndpoint URL del WSFEv1 para el entorno (homologacion por defecto).
func WSFEEndpoint(environment string) string {
	if environment == entity.EnvironmentProduccion {
		return wsfeURLProduccion
	}
	return wsfeURLHomologacion
}

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// TokenRequest datos para obtener un ticket de acceso del WSAA.
type TokenRequest struct {
	CUIT        string
	CertPath    string
	KeyPath     string
	Endpoint    string // vacío = según entorno o configuración
	Environment string
}

// Auth credenciales de un pedido al WSFE.
type Auth struct {
	Token       string
	Sign        string
	CUIT        string
	Environment string
}

// Message código y mensaje devueltos por ARCA (Err u Obs).
type Message struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// CAEResponse respuesta de FECAESolicitar o FECompConsultar para un comprobante.
type CAEResponse struct {
	Result       string // A (aprobado), R (rechazado), P (parcial)
	CAE          string
	CAEExpiry    string // YYYYMMDD
	PointOfSale  int
	DocumentType int
	Sequence     int64
	Errors       []Message
	Observations []Message
	// Issued datos del comprobante registrado; sólo los completa FECompConsultar.
	Issued *arcadomain.IssuedVoucher
}

// Approved indica si ARCA otorgó CAE.
func (r *CAEResponse) Approved() bool {
	return r != nil && r.Result == afip.ResultadoAprobado && r.CAE != ""
}

// Rejection primer error (o, si no hay, primera observación) que explica el rechazo.
func (r *CAEResponse) Rejection() Message {
	if r == nil {
		return Message{}
	}
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	if len(r.Observations) > 0 {
		return r.Observations[0]
	}
	return Message{Code: r.Result, Msg: "rechazado sin detalle"}
}

// Authority puerto de salida hacia ARCA. La implementación concreta usa SOAP; en tests y en el
// reintento simulado se inyecta otra.
type Authority interface {
	// AcquireToken pide un ticket nuevo al WSAA. Nunca devuelve un ticket cacheado.
	AcquireToken(ctx context.Context, req TokenRequest) (entity.AuthToken, error)
	// LastAuthorized último número autorizado para punto de venta y tipo.
	LastAuthorized(ctx context.Context, auth Auth, pointOfSale, documentType int) (int64, error)
	// RequestCAE solicita CAE. Un rechazo de negocio vuelve como Result R, no como error.
	RequestCAE(ctx context.Context, auth Auth, req *arcadomain.CAERequest) (*CAEResponse, error)
	// QueryCAE consulta un comprobante ya emitido; nil, nil si ARCA no lo tiene.
	QueryCAE(ctx context.Context, auth Auth, pointOfSale, documentType int, sequence int64) (*CAEResponse, error)
}

// AuthorityError falla de protocolo o de autenticación informada por ARCA (SOAP Fault o Errors del WSFE).
type AuthorityError struct {
	Operation string
	Code      string
	Message   string
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("arca: %s: [%s] %s", e.Operation, e.Code, e.Message)
}
