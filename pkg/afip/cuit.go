package afip

import (
	"fmt"
	"unicode"
)

// pesos para el dígito verificador de la CUIT, aplicados a los 10 primeros dígitos de izquierda a derecha.
var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// CUITLength cantidad de dígitos de una CUIT/CUIL completa.
const CUITLength = 11

// NormalizeCUIT deja sólo los dígitos: "20-12345678-6" -> "20123456786".
func NormalizeCUIT(s string) string {
	return string(extractDigits(s))
}

// IsValidLength indica si el valor (con o sin guiones) tiene exactamente 11 dígitos.
func IsValidLength(s string) bool {
	return len(extractDigits(s)) == CUITLength
}

// ParseCUIT normaliza y valida longitud y dígito verificador. Devuelve la CUIT sólo con dígitos.
func ParseCUIT(s string) (string, error) {
	if err := ValidateCUIT(s); err != nil {
		return "", err
	}
	return NormalizeCUIT(s), nil
}

// ValidateCUIT valida la CUIT (con o sin guiones) con el algoritmo módulo 11.
func ValidateCUIT(s string) error {
	digits := extractDigits(s)
	if len(digits) != CUITLength {
		return fmt.Errorf("afip: CUIT debe tener %d dígitos, se encontraron %d", CUITLength, len(digits))
	}
	expected, err := ComputeCUITCheckDigit(string(digits[:10]))
	if err != nil {
		return err
	}
	if digits[10] != expected {
		return fmt.Errorf("afip: dígito verificador de la CUIT inválido: esperado %c, recibido %c", expected, digits[10])
	}
	return nil
}

// ComputeCUITCheckDigit calcula el dígito verificador para los 10 primeros dígitos.
// Resto 0 -> 0; resto 1 -> 9 (convención de ARCA para prefijos 23/33).
func ComputeCUITCheckDigit(prefix string) (byte, error) {
	digits := extractDigits(prefix)
	if len(digits) < 10 {
		return 0, fmt.Errorf("afip: se requieren 10 dígitos para calcular el verificador, se encontraron %d", len(digits))
	}
	var sum int
	for i, d := range digits[:10] {
		sum += int(d-'0') * cuitWeights[i]
	}
	switch v := 11 - sum%11; v {
	case 11:
		return '0', nil
	case 10:
		return '9', nil
	default:
		return byte('0' + v), nil
	}
}

// FormatCUIT presenta la CUIT como XX-XXXXXXXX-X. Si no tiene 11 dígitos la devuelve sin cambios.
func FormatCUIT(s string) string {
	d := extractDigits(s)
	if len(d) != CUITLength {
		return s
	}
	return fmt.Sprintf("%s-%s-%s", d[:2], d[2:10], d[10:])
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			out = append(out, byte(r))
		}
	}
	return out
}
