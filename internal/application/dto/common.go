package dto

// ErrorResponse cuerpo de error HTTP. AuthorityCode/AuthorityMessage sólo cuando ARCA rechazó el comprobante.
type ErrorResponse struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	AuthorityCode    string `json:"authority_code,omitempty"`
	AuthorityMessage string `json:"authority_message,omitempty"`
}
