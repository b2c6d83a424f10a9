package credentials

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/arca-facturacion/internal/domain"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/storage"
	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

// Códigos de observación del validador.
const (
	IssueCertNotFound    = "CERT_NOT_FOUND"
	IssueKeyNotFound     = "KEY_NOT_FOUND"
	IssueCertReadError   = "CERT_READ_ERROR"
	IssueKeyReadError    = "KEY_READ_ERROR"
	IssueCertParseError  = "CERT_PARSE_ERROR"
	IssueKeyParseError   = "KEY_PARSE_ERROR"
	IssueCertNotYetValid = "CERT_NOT_YET_VALID"
	IssueCertExpired     = "CERT_EXPIRED"
	IssueKeyMismatch     = "KEY_MISMATCH"
	IssueKeyMatchUnknown = "KEY_MATCH_UNKNOWN"
	IssueCUITMismatch    = "CUIT_MISMATCH"
)

// blockingIssues impiden usar el material para autenticarse; el resto son advertencias.
var blockingIssues = map[string]bool{
	IssueCertNotFound:   true,
	IssueKeyNotFound:    true,
	IssueCertReadError:  true,
	IssueKeyReadError:   true,
	IssueCertParseError: true,
	IssueKeyParseError:  true,
}

// Issue observación acumulada durante la validación.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Details datos del certificado leído.
type Details struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	KeyAlgorithm string    `json:"key_algorithm"`
	CUIT         string    `json:"cuit,omitempty"` // del atributo serialNumber ("CUIT 20123456786")
}

// Result resultado de Validate. OK sólo si no hay ninguna observación.
type Result struct {
	OK      bool     `json:"ok"`
	Details *Details `json:"details,omitempty"`
	Issues  []Issue  `json:"issues,omitempty"`
}

// Has indica si el resultado contiene el código.
func (r Result) Has(code string) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// Blocking indica si alguna observación impide usar el certificado (no encontrado, no leído o ilegible).
func (r Result) Blocking() bool {
	for _, i := range r.Issues {
		if blockingIssues[i.Code] {
			return true
		}
	}
	return false
}

// Validator valida el par certificado/llave de una empresa. Nunca devuelve error: todo se acumula en Issues.
type Validator struct {
	reader storage.Reader
	now    func() time.Time
}

// NewValidator crea el validador sobre el lector de archivos configurado.
func NewValidator(reader storage.Reader) *Validator {
	return &Validator{reader: reader, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate lee y parsea ambos archivos, revisa vigencia, correspondencia de llaves y, si se indica,
// que la CUIT figure en el certificado.
func (v *Validator) Validate(ctx context.Context, certPath, keyPath, cuit string) Result {
	var (
		res  Result
		cert *x509.Certificate
		key  crypto.Signer
	)
	add := func(code, format string, args ...any) {
		res.Issues = append(res.Issues, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if certData, err := v.reader.ReadBytes(ctx, certPath); err != nil {
		code, msg := readIssue(err, IssueCertNotFound, IssueCertReadError)
		add(code, "certificado %q: %s", certPath, msg)
	} else if cert, err = ParseCertificate(certData); err != nil {
		add(IssueCertParseError, "certificado %q: %v", certPath, err)
	}

	if keyData, err := v.reader.ReadBytes(ctx, keyPath); err != nil {
		code, msg := readIssue(err, IssueKeyNotFound, IssueKeyReadError)
		add(code, "llave %q: %s", keyPath, msg)
	} else if key, err = ParsePrivateKey(keyData); err != nil {
		add(IssueKeyParseError, "llave %q: %v", keyPath, err)
	}

	if cert != nil {
		res.Details = certDetails(cert)

		now := v.now()
		switch {
		case now.Before(cert.NotBefore):
			add(IssueCertNotYetValid, "vigente desde %s", cert.NotBefore.Format(time.RFC3339))
		case now.After(cert.NotAfter):
			add(IssueCertExpired, "venció el %s", cert.NotAfter.Format(time.RFC3339))
		}

		if key != nil {
			switch matchKey(cert, key) {
			case keyMismatch:
				add(IssueKeyMismatch, "la llave privada no corresponde al certificado")
			case keyUnknown:
				add(IssueKeyMatchUnknown, "no se pudo verificar la correspondencia (%s / %T)", cert.PublicKeyAlgorithm, key)
			}
		}

		if strings.TrimSpace(cuit) != "" && !MatchesCUIT(cert, cuit) {
			add(IssueCUITMismatch, "la CUIT %s no figura en el sujeto ni en los nombres alternativos", cuit)
		}
	}

	res.OK = len(res.Issues) == 0
	return res
}

// readIssue separa el archivo inexistente de cualquier otra falla de lectura (permisos, red, bucket).
func readIssue(err error, notFound, readFailed string) (string, string) {
	if errors.Is(err, domain.ErrFileNotFound) {
		return notFound, "no existe"
	}
	return readFailed, "no se pudo leer: " + err.Error()
}

type keyMatch int

const (
	keyMatches keyMatch = iota
	keyMismatch
	keyUnknown
)

// matchKey compara módulos cuando ambos lados son RSA; si no, firma un mensaje aleatorio con la llave
// y lo verifica con la pública del certificado.
func matchKey(cert *x509.Certificate, key crypto.Signer) keyMatch {
	if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
		if priv, ok := key.(*rsa.PrivateKey); ok {
			if pub.N.Cmp(priv.N) == 0 && pub.E == priv.E {
				return keyMatches
			}
			return keyMismatch
		}
	}

	msg := make([]byte, 32)
	if _, err := rand.Read(msg); err != nil {
		return keyUnknown
	}
	digest := sha256.Sum256(msg)

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		sig, err := key.Sign(rand.Reader, digest[:], crypto.SHA256)
		if err != nil {
			return keyUnknown
		}
		if rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) != nil {
			return keyMismatch
		}
		return keyMatches
	case *ecdsa.PublicKey:
		sig, err := key.Sign(rand.Reader, digest[:], crypto.SHA256)
		if err != nil {
			return keyUnknown
		}
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return keyMismatch
		}
		return keyMatches
	case ed25519.PublicKey:
		sig, err := key.Sign(rand.Reader, msg, crypto.Hash(0))
		if err != nil {
			return keyUnknown
		}
		if !ed25519.Verify(pub, msg, sig) {
			return keyMismatch
		}
		return keyMatches
	default:
		return keyUnknown
	}
}

// MatchesCUIT heurística: la CUIT (tal cual o sólo dígitos) aparece como subcadena de los valores
// del sujeto y de los nombres alternativos. No es una garantía criptográfica.
func MatchesCUIT(cert *x509.Certificate, cuit string) bool {
	if cert == nil {
		return false
	}
	var parts []string
	for _, atv := range cert.Subject.Names {
		parts = append(parts, fmt.Sprint(atv.Value))
	}
	parts = append(parts, cert.DNSNames...)
	parts = append(parts, cert.EmailAddresses...)
	for _, ip := range cert.IPAddresses {
		parts = append(parts, ip.String())
	}
	for _, u := range cert.URIs {
		parts = append(parts, u.String())
	}
	haystack := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")

	raw := strings.Join(strings.Fields(cuit), " ")
	if raw != "" && strings.Contains(haystack, raw) {
		return true
	}
	digits := afip.NormalizeCUIT(cuit)
	return digits != "" && strings.Contains(haystack, digits)
}

func certDetails(cert *x509.Certificate) *Details {
	d := &Details{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.Text(16),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		KeyAlgorithm: cert.PublicKeyAlgorithm.String(),
	}
	if digits := afip.NormalizeCUIT(cert.Subject.SerialNumber); len(digits) == afip.CUITLength {
		d.CUIT = digits
	}
	return d
}
