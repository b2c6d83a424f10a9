package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca"
	"github.com/jhoicas/arca-facturacion/pkg/logger"
)

// TokenRefreshMargin un ticket que vence antes de now+margen se renueva.
const TokenRefreshMargin = 10 * time.Minute

// TokenCache entrega credenciales del WSFE reutilizando el ticket guardado en la configuración fiscal.
// Dos renovaciones concurrentes para la misma empresa son válidas: gana la última escritura.
type TokenCache struct {
	configRepo repository.FiscalConfigRepository
	authority  arca.Authority
	recorder   Recorder
	log        *logger.Logger
	now        func() time.Time
}

// NewTokenCache construye la caché. recorder y log pueden ser nil.
func NewTokenCache(configRepo repository.FiscalConfigRepository, authority arca.Authority, recorder Recorder, log *logger.Logger) *TokenCache {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TokenCache{configRepo: configRepo, authority: authority, recorder: recorder, log: log, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (c *TokenCache) WithClock(now func() time.Time) *TokenCache {
	c.now = now
	return c
}

// Auth devuelve token y sign vigentes para la empresa. Si el guardado no sirve pide uno nuevo al WSAA,
// lo persiste y actualiza cfg en memoria. Un fallo al persistir se loguea y no impide usar el ticket.
func (c *TokenCache) Auth(ctx context.Context, cfg *entity.FiscalConfiguration) (arca.Auth, error) {
	if cfg.Token.ValidAt(c.now(), TokenRefreshMargin) {
		return authFor(cfg), nil
	}

	tok, err := c.authority.AcquireToken(ctx, arca.TokenRequest{
		CUIT:        cfg.CUIT,
		CertPath:    cfg.CertPath,
		KeyPath:     cfg.KeyPath,
		Environment: cfg.Environment,
	})
	if err != nil {
		c.recorder.TokenRefresh(false)
		return arca.Auth{}, fmt.Errorf("obtener ticket WSAA para %s: %w", cfg.CompanyID, err)
	}
	c.recorder.TokenRefresh(true)

	if err := c.configRepo.UpdateToken(ctx, cfg.CompanyID, tok); err != nil {
		c.log.Warn().Err(err).Str("company_id", cfg.CompanyID).Msg("no se pudo guardar el ticket WSAA")
	}
	cfg.Token = tok
	c.log.Debug().Str("company_id", cfg.CompanyID).Time("expires_at", tok.ExpiresAt).Msg("ticket WSAA renovado")
	return authFor(cfg), nil
}

func authFor(cfg *entity.FiscalConfiguration) arca.Auth {
	return arca.Auth{
		Token:       cfg.Token.Token,
		Sign:        cfg.Token.Sign,
		CUIT:        cfg.CUIT,
		Environment: cfg.Environment,
	}
}
