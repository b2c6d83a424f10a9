package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/arca-facturacion/internal/domain"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca"
	"github.com/jhoicas/arca-facturacion/pkg/logger"
)

// Límites del lote.
const (
	DefaultBatchLimit = 25
	MaxBatchLimit     = 200

	batchLockKey = "arca:cae:retry-batch"
	batchLockTTL = 15 * time.Minute
)

// RetryConfig modo de operación del lote. El modo simulado se elige al construir el servicio.
type RetryConfig struct {
	Mock          bool
	ForcedOutcome string // APPROVED | REJECTED | PENDING; habilita el modo simulado
	DefaultLimit  int    // 0 = DefaultBatchLimit
}

// MockEnabled indica si el lote simula las respuestas de ARCA.
func (c RetryConfig) MockEnabled() bool {
	return c.Mock || strings.TrimSpace(c.ForcedOutcome) != ""
}

// RunOptions parámetros de una corrida.
type RunOptions struct {
	Limit  int    // 0 = límite por defecto
	Source string // batch | cron | manual
	Actor  string
}

// BatchItem resultado por factura.
type BatchItem struct {
	InvoiceID string
	CompanyID string
	Outcome   string
	Code      string
	Message   string
}

// BatchSummary totales de una corrida. Processed cuenta todas las facturas seleccionadas.
type BatchSummary struct {
	Processed  int
	Authorized int
	Rejected   int
	Skipped    int
	Pending    int
	Errors     int
	Mock       bool
	Source     string
	Items      []BatchItem
}

// RetryBatchService drena en serie las facturas ARCA pendientes de CAE.
type RetryBatchService struct {
	invoiceRepo repository.InvoiceRepository
	configRepo  repository.FiscalConfigRepository
	cae         *CAEService
	tokens      *TokenCache
	locker      BatchLocker
	cfg         RetryConfig
	recorder    Recorder
	log         *logger.Logger
	now         func() time.Time
}

// NewRetryBatchService construye el servicio. locker nil = sin lock distribuido.
func NewRetryBatchService(
	invoiceRepo repository.InvoiceRepository,
	configRepo repository.FiscalConfigRepository,
	cae *CAEService,
	tokens *TokenCache,
	locker BatchLocker,
	cfg RetryConfig,
	recorder Recorder,
	log *logger.Logger,
) *RetryBatchService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg.ForcedOutcome = strings.ToUpper(strings.TrimSpace(cfg.ForcedOutcome))
	return &RetryBatchService{
		invoiceRepo: invoiceRepo,
		configRepo:  configRepo,
		cae:         cae,
		tokens:      tokens,
		locker:      locker,
		cfg:         cfg,
		recorder:    recorder,
		log:         log,
		now:         time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *RetryBatchService) WithClock(now func() time.Time) *RetryBatchService {
	s.now = now
	return s
}

// NormalizeLimit aplica el límite por defecto y el rango [1, MaxBatchLimit].
func NormalizeLimit(limit, def int) int {
	if limit == 0 {
		limit = def
	}
	if limit == 0 {
		limit = DefaultBatchLimit
	}
	return min(max(limit, 1), MaxBatchLimit)
}

// Run procesa una tanda. Un error por factura se cuenta en Errors y no corta la corrida.
// Devuelve domain.ErrBatchInProgress si otra corrida tiene el lock.
func (s *RetryBatchService) Run(ctx context.Context, opts RunOptions) (*BatchSummary, error) {
	start := s.now()
	source := strings.TrimSpace(opts.Source)
	if source == "" {
		source = entity.AuditSourceBatch
	}
	limit := NormalizeLimit(opts.Limit, s.cfg.DefaultLimit)
	mock := s.cfg.MockEnabled()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, batchLockKey, batchLockTTL)
		if err != nil {
			return nil, fmt.Errorf("tomar lock del lote: %w", err)
		}
		if !ok {
			return nil, domain.ErrBatchInProgress
		}
		defer func() {
			if err := s.locker.Release(context.Background(), batchLockKey, token); err != nil {
				s.log.Warn().Err(err).Msg("no se pudo liberar el lock del lote")
			}
		}()
	}

	invoices, err := s.invoiceRepo.ListPendingCAE(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listar facturas pendientes: %w", err)
	}

	sum := &BatchSummary{Mock: mock, Source: source, Items: make([]BatchItem, 0, len(invoices))}
	run := &batchRun{
		configs: map[string]*entity.FiscalConfiguration{},
		auths:   map[string]arca.Auth{},
		authErr: map[string]error{},
	}
	for _, inv := range invoices {
		item := s.processOne(ctx, run, inv, mock, source, opts.Actor)
		sum.add(item)
	}

	s.recorder.BatchRun(mock, sum.Authorized, sum.Rejected, sum.Skipped, sum.Errors, s.now().Sub(start))
	s.log.Info().
		Str("source", source).
		Bool("mock", mock).
		Int("processed", sum.Processed).
		Int("authorized", sum.Authorized).
		Int("rejected", sum.Rejected).
		Int("skipped", sum.Skipped).
		Int("errors", sum.Errors).
		Msg("reintento masivo de CAE terminado")
	return sum, nil
}

// batchRun estado de una corrida: un ticket por empresa, pedido a lo sumo una vez.
type batchRun struct {
	configs map[string]*entity.FiscalConfiguration
	auths   map[string]arca.Auth
	authErr map[string]error
}

func (s *RetryBatchService) processOne(ctx context.Context, run *batchRun, inv *entity.Invoice, mock bool, source, actor string) BatchItem {
	item := BatchItem{InvoiceID: inv.ID, CompanyID: inv.CompanyID}

	if !inv.IsARCA() || !inv.IsPendingCAE() || !inv.HasFiscalKey() {
		item.Outcome = OutcomeSkipped
		item.Code = "MISSING_FISCAL_KEY"
		if !inv.IsARCA() || !inv.IsPendingCAE() {
			item.Code = "NOT_PENDING"
		}
		return item
	}

	if mock {
		return s.simulate(ctx, inv, item, source, actor)
	}

	cfg, auth, err := s.credentials(ctx, run, inv.CompanyID)
	if err != nil {
		item.Outcome = OutcomeError
		item.Code = domain.CodeOf(err)
		item.Message = err.Error()
		return item
	}

	res, err := s.cae.process(ctx, inv, cfg, auth, source, actor)
	if err != nil {
		var fe *domain.FiscalError
		if errors.As(err, &fe) && fe.Code == domain.CodeAFIPRejected {
			item.Outcome = OutcomeRejected
			item.Code = fe.AuthorityCode
			item.Message = fe.AuthorityMessage
			return item
		}
		item.Outcome = OutcomeError
		item.Code = domain.CodeOf(err)
		item.Message = err.Error()
		return item
	}
	item.Outcome = res.Outcome
	return item
}

// credentials configuración y ticket de la empresa, cacheados durante la corrida.
func (s *RetryBatchService) credentials(ctx context.Context, run *batchRun, companyID string) (*entity.FiscalConfiguration, arca.Auth, error) {
	if err, ok := run.authErr[companyID]; ok {
		return nil, arca.Auth{}, err
	}
	if auth, ok := run.auths[companyID]; ok {
		return run.configs[companyID], auth, nil
	}

	fail := func(err error) (*entity.FiscalConfiguration, arca.Auth, error) {
		run.authErr[companyID] = err
		return nil, arca.Auth{}, err
	}

	cfg, err := s.configRepo.GetByCompanyID(ctx, companyID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fail(domain.WrapFiscalError(domain.CodeRetryFailed, "leer configuración fiscal", err))
	}
	if !cfg.IsComplete() {
		return fail(domain.NewFiscalError(domain.CodeIncompleteFiscalConfig, "faltan certificado, llave o CUIT de la empresa"))
	}
	auth, err := s.tokens.Auth(ctx, cfg)
	if err != nil {
		s.log.Error().Err(err).Str("company_id", companyID).Msg("no se pudo obtener ticket WSAA para el lote")
		return fail(domain.WrapFiscalError(domain.CodeRetryFailed, "obtener ticket WSAA", err))
	}
	run.configs[companyID] = cfg
	run.auths[companyID] = auth
	return cfg, auth, nil
}

func (sum *BatchSummary) add(item BatchItem) {
	sum.Processed++
	switch item.Outcome {
	case OutcomeAuthorized, OutcomeRecovered, OutcomeAlreadyAuthorized:
		sum.Authorized++
	case OutcomeRejected:
		sum.Rejected++
	case OutcomeSkipped:
		sum.Skipped++
	case OutcomePending:
		sum.Pending++
	default:
		sum.Errors++
	}
	sum.Items = append(sum.Items, item)
}
