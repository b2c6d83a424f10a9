package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound        = errors.New("recurso no encontrado")
	ErrInvalidInput    = errors.New("entrada inválida")
	ErrConflict        = errors.New("conflicto con el estado actual")
	ErrUnauthorized    = errors.New("no autorizado")
	ErrFileNotFound    = errors.New("archivo no encontrado")
	ErrBatchInProgress = errors.New("ya hay un reintento masivo en curso")
)

// Códigos de error del flujo de autorización (CAE).
const (
	CodeIncompleteFiscalConfig = "INCOMPLETE_FISCAL_CONFIG"
	CodeInvoiceNotFound        = "INVOICE_NOT_FOUND"
	CodeNotARCA                = "NOT_ARCA"
	CodeAlreadyAuthorized      = "ALREADY_AUTHORIZED"
	CodeCancelledCannotRetry   = "CANCELLED_CANNOT_RETRY"
	CodeAFIPRejected           = "AFIP_REJECTED"
	CodeRetryFailed            = "RETRY_FAILED"
)

// FiscalError error tipado del flujo de CAE. AuthorityCode/AuthorityMessage sólo se completan
// cuando ARCA devolvió un rechazo estructurado.
type FiscalError struct {
	Code             string
	Message          string
	AuthorityCode    string
	AuthorityMessage string
	Err              error
}

func (e *FiscalError) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.AuthorityCode != "" {
		msg += fmt.Sprintf(" (ARCA %s: %s)", e.AuthorityCode, e.AuthorityMessage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FiscalError) Unwrap() error { return e.Err }

// NewFiscalError crea un FiscalError sin causa.
func NewFiscalError(code, message string) *FiscalError {
	return &FiscalError{Code: code, Message: message}
}

// WrapFiscalError envuelve err con el código indicado.
func WrapFiscalError(code, message string, err error) *FiscalError {
	return &FiscalError{Code: code, Message: message, Err: err}
}

// CodeOf devuelve el código del primer FiscalError de la cadena, o "" si no hay.
func CodeOf(err error) string {
	var fe *FiscalError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
