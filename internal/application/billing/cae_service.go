package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/arca-facturacion/internal/domain"
	arcadomain "github.com/jhoicas/arca-facturacion/internal/domain/arca"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca"
	"github.com/jhoicas/arca-facturacion/pkg/logger"
)

// Resultados de un intento (etiqueta de métricas y de ítems del lote).
const (
	OutcomeAuthorized        = "authorized"
	OutcomeRecovered         = "recovered"
	OutcomeAlreadyAuthorized = "already_authorized"
	OutcomeRejected          = "rejected"
	OutcomePending           = "pending"
	OutcomeSkipped           = "skipped"
	OutcomeError             = "error"
)

// RetryResult resultado exitoso de un reintento.
type RetryResult struct {
	InvoiceID    string
	Outcome      string // authorized, recovered, already_authorized
	Status       string
	CAE          string
	CAEExpiry    string
	PointOfSale  int
	DocumentType int
	Sequence     int64
	// Reasons motivos de corrección del tipo de comprobante aplicados en este intento.
	Reasons      []string
	Observations []arca.Message
}

// CAEService máquina de estados de autorización de una factura ante ARCA.
// Es el único que escribe los campos fiscales de la factura.
type CAEService struct {
	invoiceRepo repository.InvoiceRepository
	configRepo  repository.FiscalConfigRepository
	tx          FiscalTxRunner
	tokens      *TokenCache
	authority   arca.Authority
	recorder    Recorder
	log         *logger.Logger
	now         func() time.Time
}

// NewCAEService construye el servicio. tx nil = escrituras sin transacción sobre invoiceRepo/auditRepo.
func NewCAEService(
	invoiceRepo repository.InvoiceRepository,
	configRepo repository.FiscalConfigRepository,
	auditRepo repository.InvoiceAuditRepository,
	tx FiscalTxRunner,
	tokens *TokenCache,
	authority arca.Authority,
	recorder Recorder,
	log *logger.Logger,
) *CAEService {
	if tx == nil {
		tx = directTx{invoiceRepo: invoiceRepo, auditRepo: auditRepo}
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CAEService{
		invoiceRepo: invoiceRepo,
		configRepo:  configRepo,
		tx:          tx,
		tokens:      tokens,
		authority:   authority,
		recorder:    recorder,
		log:         log,
		now:         time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *CAEService) WithClock(now func() time.Time) *CAEService {
	s.now = now
	return s
}

// Retry intenta autorizar una factura de la empresa. Los errores son siempre *domain.FiscalError.
func (s *CAEService) Retry(ctx context.Context, companyID, invoiceID, actor string) (*RetryResult, error) {
	log := s.log.Invoice(companyID, invoiceID)

	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewFiscalError(domain.CodeInvoiceNotFound, "factura inexistente")
		}
		return nil, s.failed(log, entity.AuditSourceManual, err)
	}
	if inv.CompanyID != companyID {
		return nil, domain.NewFiscalError(domain.CodeInvoiceNotFound, "factura inexistente")
	}
	if !inv.IsARCA() {
		return nil, domain.NewFiscalError(domain.CodeNotARCA, "la factura no se emite por ARCA")
	}
	if inv.IsAuthorized() {
		s.recorder.CAEAttempt(entity.AuditSourceManual, OutcomeAlreadyAuthorized)
		return resultFrom(inv, OutcomeAlreadyAuthorized, nil), nil
	}
	if inv.IsCancelled() {
		return nil, domain.NewFiscalError(domain.CodeCancelledCannotRetry, "la factura está anulada")
	}

	cfg, err := s.configRepo.GetByCompanyID(ctx, companyID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, s.failed(log, entity.AuditSourceManual, err)
	}
	if !cfg.IsComplete() {
		return nil, domain.NewFiscalError(domain.CodeIncompleteFiscalConfig, "faltan certificado, llave o CUIT de la empresa")
	}

	auth, err := s.tokens.Auth(ctx, cfg)
	if err != nil {
		return nil, s.failed(log, entity.AuditSourceManual, err)
	}
	return s.process(ctx, inv, cfg, auth, entity.AuditSourceManual, actor)
}

// process ejecuta sondeo, corrección de tipo, numeración, armado y solicitud para una factura
// ya validada. Lo comparten el reintento individual y el lote.
func (s *CAEService) process(ctx context.Context, inv *entity.Invoice, cfg *entity.FiscalConfiguration, auth arca.Auth, source, actor string) (*RetryResult, error) {
	log := s.log.Invoice(inv.CompanyID, inv.ID)

	// Sondeo: un intento previo pudo quedar autorizado en ARCA sin que se guardara el CAE.
	if inv.HasUnconfirmedKey() {
		res, recovered, err := s.recoverIssued(ctx, inv, cfg, auth, source, actor)
		if err != nil {
			return nil, s.failed(log, source, err)
		}
		if recovered {
			return res, nil
		}
	}

	decision := arcadomain.DeriveDocumentType(arcadomain.DocTypeInput{
		StoredType:           inv.Fiscal.DocumentType,
		CustomerTaxID:        inv.CustomerTaxID,
		CustomerTaxCondition: inv.CustomerTaxCondition,
		IssuerCUIT:           cfg.CUIT,
	})
	if decision.UnknownCondition {
		log.Warn().Str("condicion_iva", decision.Condition).
			Msg("condición IVA sin regla de tipo de comprobante; requiere extender la política")
	}
	if decision.Changed() {
		if err := s.persistDocType(ctx, inv, decision, source, actor); err != nil {
			return nil, s.failed(log, source, err)
		}
	}
	docType := decision.Code

	pos := inv.Fiscal.PointOfSale
	if pos <= 0 {
		pos = cfg.PointOfSale
	}
	if pos <= 0 {
		return nil, domain.NewFiscalError(domain.CodeIncompleteFiscalConfig, "la empresa no tiene punto de venta")
	}

	last, err := s.authority.LastAuthorized(ctx, auth, pos, docType)
	if err != nil {
		return nil, s.failed(log, source, err)
	}
	seq := last + 1

	doc := arcadomain.ClassifyCustomerDocument(inv.CustomerTaxID, docType, decision.SelfBilling)
	req, err := arcadomain.BuildCAERequest(inv, pos, docType, seq, doc)
	if err != nil {
		return nil, s.failed(log, source, err)
	}

	if err := s.reserveKey(ctx, inv, pos, docType, seq); err != nil {
		return nil, s.failed(log, source, err)
	}

	resp, err := s.authority.RequestCAE(ctx, auth, req)
	if err == nil && resp == nil {
		err = errors.New("FECAESolicitar sin respuesta")
	}
	if err != nil {
		return nil, s.failed(log, source, err)
	}

	reqAudit := auditRequest{PointOfSale: pos, DocumentType: docType, Sequence: seq, DocType: doc.Type, DocNumber: doc.Number}
	now := s.now()
	if resp.Approved() {
		fiscal := entity.FiscalData{
			DocumentType:   docType,
			PointOfSale:    pos,
			Sequence:       seq,
			CAE:            resp.CAE,
			CAEExpiry:      resp.CAEExpiry,
			Status:         entity.FiscalStatusAuthorized,
			LastResponseAt: &now,
		}
		if err := s.commitAuthorized(ctx, inv, fiscal, entity.AuditActionCAEAuthorized, source, actor, reqAudit, responseAudit(resp)); err != nil {
			return nil, s.failed(log, source, err)
		}
		s.recorder.CAEAttempt(source, OutcomeAuthorized)
		log.Info().Str("source", source).Str("cae", resp.CAE).Int64("sequence", seq).Msg("CAE otorgado")
		res := resultFrom(inv, OutcomeAuthorized, decision.Reasons)
		res.Observations = resp.Observations
		return res, nil
	}

	rej := resp.Rejection()
	fiscal := entity.FiscalData{
		DocumentType:     docType,
		PointOfSale:      pos,
		Sequence:         seq,
		Status:           entity.FiscalStatusRejected,
		LastResponseAt:   &now,
		LastErrorCode:    rej.Code,
		LastErrorMessage: rej.Msg,
	}
	if err := s.commitRejected(ctx, inv, fiscal, source, actor, reqAudit, responseAudit(resp)); err != nil {
		return nil, s.failed(log, source, err)
	}
	s.recorder.CAEAttempt(source, OutcomeRejected)
	log.Warn().Str("source", source).Str("code", rej.Code).Str("msg", rej.Msg).Msg("ARCA rechazó el comprobante")
	return nil, &domain.FiscalError{
		Code:             domain.CodeAFIPRejected,
		Message:          "ARCA rechazó el comprobante",
		AuthorityCode:    rej.Code,
		AuthorityMessage: rej.Msg,
	}
}

// recoverIssued consulta en ARCA la clave fiscal pendiente de confirmar. recovered=true si ARCA tiene CAE para
// un comprobante con el receptor, total y fecha de esta factura, y se guardó.
func (s *CAEService) recoverIssued(ctx context.Context, inv *entity.Invoice, cfg *entity.FiscalConfiguration, auth arca.Auth, source, actor string) (*RetryResult, bool, error) {
	key := inv.Fiscal
	resp, err := s.authority.QueryCAE(ctx, auth, key.PointOfSale, key.DocumentType, key.Sequence)
	if err != nil {
		return nil, false, fmt.Errorf("sondeo FECompConsultar: %w", err)
	}
	if !resp.Approved() {
		return nil, false, nil
	}
	doc := arcadomain.ClassifyCustomerDocument(inv.CustomerTaxID, key.DocumentType,
		arcadomain.IsSelfBilling(inv.CustomerTaxID, cfg.CUIT))
	if resp.Issued == nil || !resp.Issued.Matches(inv, doc) {
		s.log.Invoice(inv.CompanyID, inv.ID).Warn().
			Int("point_of_sale", key.PointOfSale).
			Int("document_type", key.DocumentType).
			Int64("sequence", key.Sequence).
			Msg("el número guardado pertenece a otro comprobante en ARCA; se pide uno nuevo")
		return nil, false, nil
	}

	now := s.now()
	fiscal := entity.FiscalData{
		DocumentType:   key.DocumentType,
		PointOfSale:    key.PointOfSale,
		Sequence:       key.Sequence,
		CAE:            resp.CAE,
		CAEExpiry:      resp.CAEExpiry,
		Status:         entity.FiscalStatusAuthorized,
		LastResponseAt: &now,
	}
	reqAudit := auditRequest{PointOfSale: key.PointOfSale, DocumentType: key.DocumentType, Sequence: key.Sequence}
	if err := s.commitAuthorized(ctx, inv, fiscal, entity.AuditActionCAERecovered, source, actor, reqAudit, responseAudit(resp)); err != nil {
		return nil, false, err
	}
	s.recorder.CAEAttempt(source, OutcomeRecovered)
	s.log.Invoice(inv.CompanyID, inv.ID).Info().Str("cae", resp.CAE).Msg("CAE recuperado de ARCA")
	return resultFrom(inv, OutcomeRecovered, nil), true, nil
}

func (s *CAEService) persistDocType(ctx context.Context, inv *entity.Invoice, d arcadomain.DocTypeDecision, source, actor string) error {
	err := s.tx.RunFiscal(ctx, func(invoiceRepo repository.InvoiceRepository, auditRepo repository.InvoiceAuditRepository) error {
		if err := invoiceRepo.UpdateDocumentType(ctx, inv.ID, d.Code); err != nil {
			return err
		}
		if !d.Corrected() {
			return nil
		}
		return auditRepo.Append(ctx, s.audit(inv, entity.AuditActionDocTypeCorrected, source, actor,
			docTypeAudit{From: d.StoredType, To: d.Code, Reasons: d.Reasons, Condition: d.Condition},
			nil))
	})
	if err != nil {
		return fmt.Errorf("guardar tipo de comprobante: %w", err)
	}
	inv.Fiscal.DocumentType = d.Code
	return nil
}

// reserveKey deja registrada la clave del pedido antes de enviarlo, para poder sondearla si la
// respuesta se pierde.
func (s *CAEService) reserveKey(ctx context.Context, inv *entity.Invoice, pos, docType int, seq int64) error {
	err := s.tx.RunFiscal(ctx, func(invoiceRepo repository.InvoiceRepository, _ repository.InvoiceAuditRepository) error {
		return invoiceRepo.ReserveFiscalKey(ctx, inv.ID, pos, docType, seq)
	})
	if err != nil {
		return fmt.Errorf("reservar número fiscal: %w", err)
	}
	inv.Fiscal.PointOfSale = pos
	inv.Fiscal.DocumentType = docType
	inv.Fiscal.Sequence = seq
	inv.Fiscal.Status = entity.FiscalStatusPending
	return nil
}

func (s *CAEService) commitAuthorized(ctx context.Context, inv *entity.Invoice, fiscal entity.FiscalData, action, source, actor string, req, resp any) error {
	err := s.tx.RunFiscal(ctx, func(invoiceRepo repository.InvoiceRepository, auditRepo repository.InvoiceAuditRepository) error {
		if err := invoiceRepo.MarkAuthorized(ctx, inv.ID, fiscal); err != nil {
			return err
		}
		return auditRepo.Append(ctx, s.audit(inv, action, source, actor, req, resp))
	})
	if err != nil {
		return fmt.Errorf("guardar autorización: %w", err)
	}
	inv.Status = entity.InvoiceStatusAuthorized
	inv.Fiscal = fiscal
	return nil
}

func (s *CAEService) commitRejected(ctx context.Context, inv *entity.Invoice, fiscal entity.FiscalData, source, actor string, req, resp any) error {
	err := s.tx.RunFiscal(ctx, func(invoiceRepo repository.InvoiceRepository, auditRepo repository.InvoiceAuditRepository) error {
		if err := invoiceRepo.MarkRejected(ctx, inv.ID, fiscal); err != nil {
			return err
		}
		return auditRepo.Append(ctx, s.audit(inv, entity.AuditActionCAERejected, source, actor, req, resp))
	})
	if err != nil {
		return fmt.Errorf("guardar rechazo: %w", err)
	}
	inv.Status = entity.InvoiceStatusRejected
	inv.RetryCount++
	inv.Fiscal = fiscal
	return nil
}

// commitPending deja constancia de un intento sin resultado definitivo; no toca la factura.
func (s *CAEService) commitPending(ctx context.Context, inv *entity.Invoice, source, actor string, req, resp any) error {
	return s.tx.RunFiscal(ctx, func(_ repository.InvoiceRepository, auditRepo repository.InvoiceAuditRepository) error {
		return auditRepo.Append(ctx, s.audit(inv, entity.AuditActionCAEPending, source, actor, req, resp))
	})
}

// failed envuelve cualquier error inesperado como RETRY_FAILED; los FiscalError pasan tal cual.
func (s *CAEService) failed(log *logger.Logger, source string, err error) error {
	var fe *domain.FiscalError
	if errors.As(err, &fe) {
		return fe
	}
	s.recorder.CAEAttempt(source, OutcomeError)
	log.Error().Err(err).Str("source", source).Msg("reintento de CAE fallido")
	return domain.WrapFiscalError(domain.CodeRetryFailed, "no se pudo completar la solicitud de CAE", err)
}

// ── Auditoría ─────────────────────────────────────────────────────────────────

type auditRequest struct {
	PointOfSale  int   `json:"point_of_sale"`
	DocumentType int   `json:"document_type"`
	Sequence     int64 `json:"sequence"`
	DocType      int   `json:"doc_tipo,omitempty"`
	DocNumber    int64 `json:"doc_nro,omitempty"`
	Mock         bool  `json:"mock,omitempty"`
}

type auditResponse struct {
	Result       string         `json:"result"`
	CAE          string         `json:"cae,omitempty"`
	CAEExpiry    string         `json:"cae_expiry,omitempty"`
	Errors       []arca.Message `json:"errors,omitempty"`
	Observations []arca.Message `json:"observations,omitempty"`
	Mock         bool           `json:"mock,omitempty"`
}

type docTypeAudit struct {
	From      int      `json:"from"`
	To        int      `json:"to"`
	Reasons   []string `json:"reasons"`
	Condition string   `json:"condicion_iva,omitempty"`
}

func responseAudit(resp *arca.CAEResponse) auditResponse {
	return auditResponse{
		Result:       resp.Result,
		CAE:          resp.CAE,
		CAEExpiry:    resp.CAEExpiry,
		Errors:       resp.Errors,
		Observations: resp.Observations,
	}
}

func (s *CAEService) audit(inv *entity.Invoice, action, source, actor string, req, resp any) *entity.InvoiceAudit {
	return &entity.InvoiceAudit{
		InvoiceID: inv.ID,
		CompanyID: inv.CompanyID,
		Action:    action,
		Request:   rawJSON(req),
		Response:  rawJSON(resp),
		Actor:     actor,
		Source:    source,
		CreatedAt: s.now().UTC(),
	}
}

func rawJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func resultFrom(inv *entity.Invoice, outcome string, reasons []string) *RetryResult {
	return &RetryResult{
		InvoiceID:    inv.ID,
		Outcome:      outcome,
		Status:       inv.Status,
		CAE:          inv.Fiscal.CAE,
		CAEExpiry:    inv.Fiscal.CAEExpiry,
		PointOfSale:  inv.Fiscal.PointOfSale,
		DocumentType: inv.Fiscal.DocumentType,
		Sequence:     inv.Fiscal.Sequence,
		Reasons:      reasons,
	}
}
