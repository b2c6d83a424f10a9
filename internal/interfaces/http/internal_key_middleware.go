package http

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"github.com/jhoicas/arca-facturacion/internal/application/dto"
)

// Headers de la API interna.
const (
	HeaderInternalKey = "X-Internal-Key"
	HeaderActor       = "X-Actor"
)

// DefaultActor actor registrado en la auditoría cuando el llamador no lo informa.
const DefaultActor = "api"

var errInvalidKey = errors.New("clave interna inválida")

// InternalKeyMiddleware exige la clave interna en X-Internal-Key. Sin clave configurada rechaza todo.
func InternalKeyMiddleware(internalKey string) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup: "header:" + HeaderInternalKey,
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			if internalKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(internalKey)) != 1 {
				return false, errInvalidKey
			}
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, keyauth.ErrMissingOrMalformedAPIKey) {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_KEY", Message: HeaderInternalKey + " requerido"})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_KEY", Message: "clave interna inválida"})
		},
	})
}

// GetActor devuelve el operador informado en X-Actor (o DefaultActor).
func GetActor(c *fiber.Ctx) string {
	if a := strings.TrimSpace(c.Get(HeaderActor)); a != "" {
		return a
	}
	return DefaultActor
}
