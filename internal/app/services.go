// Package app arma los servicios de autorización a partir de la configuración. Lo comparten la API
// HTTP y el runner de cron.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/arca-facturacion/internal/application/billing"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca/credentials"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/metrics"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/postgres"
	infraredis "github.com/jhoicas/arca-facturacion/internal/infrastructure/redis"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/storage"
	"github.com/jhoicas/arca-facturacion/pkg/config"
	"github.com/jhoicas/arca-facturacion/pkg/logger"
)

// Services casos de uso listos para usar.
type Services struct {
	CAE          *billing.CAEService
	Batch        *billing.RetryBatchService
	Certificates *billing.CertificateCheckUseCase
	LibroIVA     *billing.LibroIVAUseCase

	closers []func()
}

// New conecta PostgreSQL, el backend de certificados y (si hay REDIS_ADDR) Redis, y construye los servicios.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, registerer prometheus.Registerer) (*Services, error) {
	s := &Services{}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	s.closers = append(s.closers, pool.Close)

	reader, err := storage.NewReader(ctx, cfg.Storage)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("backend de certificados: %w", err)
	}

	var locker billing.BatchLocker
	rdb, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("conexión a Redis: %w", err)
	}
	if rdb != nil {
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		locker = infraredis.NewLocker(rdb)
	} else {
		log.Warn().Msg("REDIS_ADDR vacío: el reintento masivo corre sin lock distribuido")
	}

	recorder := metrics.NewRecorder(registerer, metrics.Config{ServiceName: cfg.App.Name, Environment: cfg.ARCA.Environment})

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	configRepo := postgres.NewFiscalConfigRepository(pool)
	auditRepo := postgres.NewInvoiceAuditRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	authority := arca.NewClient(reader, arca.Config{
		WSAAURL: cfg.ARCA.WSAAURL,
		WSFEURL: cfg.ARCA.WSFEURL,
		Timeout: cfg.ARCA.HTTPTimeout,
	})
	tokens := billing.NewTokenCache(configRepo, authority, recorder, log)

	s.CAE = billing.NewCAEService(invoiceRepo, configRepo, auditRepo, txRunner, tokens, authority, recorder, log)
	s.Batch = billing.NewRetryBatchService(invoiceRepo, configRepo, s.CAE, tokens, locker, billing.RetryConfig{
		Mock:          cfg.ARCA.Mock,
		ForcedOutcome: cfg.ARCA.MockOutcome,
		DefaultLimit:  cfg.ARCA.BatchSize,
	}, recorder, log)
	s.Certificates = billing.NewCertificateCheckUseCase(configRepo, credentials.NewValidator(reader))
	s.LibroIVA = billing.NewLibroIVAUseCase(invoiceRepo, configRepo)

	if cfg.ARCA.MockEnabled() {
		log.Warn().Str("outcome", cfg.ARCA.MockOutcome).Msg("reintento masivo en modo simulado: no se contacta a ARCA")
	}
	return s, nil
}

// Close libera conexiones en orden inverso.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
