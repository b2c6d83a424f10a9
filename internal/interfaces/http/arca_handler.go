package http

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/arca-facturacion/internal/application/billing"
	"github.com/jhoicas/arca-facturacion/internal/application/dto"
	"github.com/jhoicas/arca-facturacion/internal/domain"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/internal/domain/libroiva"
	"github.com/jhoicas/arca-facturacion/pkg/logger"
)

// CAERetrier reintento individual de CAE.
type CAERetrier interface {
	Retry(ctx context.Context, companyID, invoiceID, actor string) (*billing.RetryResult, error)
}

// BatchRunner reintento masivo.
type BatchRunner interface {
	Run(ctx context.Context, opts billing.RunOptions) (*billing.BatchSummary, error)
}

// CertificateChecker validación del material fiscal de una empresa.
type CertificateChecker interface {
	Check(ctx context.Context, companyID string) (*billing.CertificateCheck, error)
}

// LibroIVAExporter exportación mensual de ventas.
type LibroIVAExporter interface {
	Export(ctx context.Context, companyID string, year, month int) (*libroiva.Export, error)
}

// ARCAHandler maneja las operaciones de autorización ante ARCA.
type ARCAHandler struct {
	cae      CAERetrier
	batch    BatchRunner
	certs    CertificateChecker
	libroIVA LibroIVAExporter
	log      *logger.Logger
}

// NewARCAHandler construye el handler. log nil descarta los detalles de errores internos.
func NewARCAHandler(cae CAERetrier, batch BatchRunner, certs CertificateChecker, libroIVA LibroIVAExporter, log *logger.Logger) *ARCAHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ARCAHandler{cae: cae, batch: batch, certs: certs, libroIVA: libroIVA, log: log}
}

// RetryCAE solicita (o recupera) el CAE de una factura.
// POST /api/companies/:companyID/invoices/:id/cae/retry
func (h *ARCAHandler) RetryCAE(c *fiber.Ctx) error {
	companyID, id := c.Params("companyID"), c.Params("id")
	if companyID == "" || id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "companyID e id requeridos"})
	}
	res, err := h.cae.Retry(c.Context(), companyID, id, GetActor(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(toRetryResponse(res))
}

// RetryBatch procesa una tanda de facturas pendientes de CAE.
// POST /api/arca/cae/retry-batch
func (h *ARCAHandler) RetryBatch(c *fiber.Ctx) error {
	var in dto.RetryBatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
		}
	}
	source := strings.ToLower(strings.TrimSpace(in.Source))
	switch source {
	case "", entity.AuditSourceBatch, entity.AuditSourceCron, entity.AuditSourceManual:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "source debe ser batch, cron o manual"})
	}

	sum, err := h.batch.Run(c.Context(), billing.RunOptions{Limit: in.Limit, Source: source, Actor: GetActor(c)})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(toBatchResponse(sum))
}

// ValidateCertificate valida certificado, llave y CUIT configurados para la empresa.
// POST /api/companies/:companyID/arca/certificate/validate
func (h *ARCAHandler) ValidateCertificate(c *fiber.Ctx) error {
	out, err := h.certs.Check(c.Context(), c.Params("companyID"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(toCertificateResponse(out))
}

// ExportLibroIVA genera el archivo de ventas del mes. Con Accept: text/plain devuelve el archivo.
// POST /api/companies/:companyID/arca/libro-iva
func (h *ARCAHandler) ExportLibroIVA(c *fiber.Ctx) error {
	var in dto.LibroIVARequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.libroIVA.Export(c.Context(), c.Params("companyID"), in.Year, in.Month)
	if err != nil {
		return h.writeError(c, err)
	}

	if c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextPlain) == fiber.MIMETextPlain {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, out.Filename))
		c.Set("X-Checksum-SHA256", out.Checksum)
		return c.SendString(out.Content)
	}
	return c.JSON(toLibroIVAResponse(out))
}

// writeError traduce errores de aplicación a respuestas HTTP. El detalle de fallas internas va al log,
// nunca al cuerpo.
func (h *ARCAHandler) writeError(c *fiber.Ctx, err error) error {
	var fe *domain.FiscalError
	if errors.As(err, &fe) {
		body := dto.ErrorResponse{Code: fe.Code, Message: fe.Message}
		switch fe.Code {
		case domain.CodeInvoiceNotFound:
			return c.Status(fiber.StatusNotFound).JSON(body)
		case domain.CodeNotARCA, domain.CodeIncompleteFiscalConfig:
			return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
		case domain.CodeCancelledCannotRetry:
			return c.Status(fiber.StatusConflict).JSON(body)
		case domain.CodeAFIPRejected:
			body.AuthorityCode, body.AuthorityMessage = fe.AuthorityCode, fe.AuthorityMessage
			return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
		case domain.CodeRetryFailed:
			h.log.Error().Err(err).Str("path", c.Path()).Msg("falla al solicitar CAE")
			return c.Status(fiber.StatusBadGateway).JSON(body)
		}
	}
	switch {
	case errors.Is(err, domain.ErrBatchInProgress):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "BATCH_IN_PROGRESS", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "configuración fiscal no encontrada"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	h.log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
}

func toRetryResponse(res *billing.RetryResult) dto.RetryCAEResponse {
	out := dto.RetryCAEResponse{
		InvoiceID:    res.InvoiceID,
		Outcome:      res.Outcome,
		Status:       res.Status,
		CAE:          res.CAE,
		CAEExpiry:    res.CAEExpiry,
		PointOfSale:  res.PointOfSale,
		DocumentType: res.DocumentType,
		Sequence:     res.Sequence,
		Corrections:  res.Reasons,
	}
	for _, o := range res.Observations {
		out.Observations = append(out.Observations, dto.ARCAMessage{Code: o.Code, Msg: o.Msg})
	}
	return out
}

func toBatchResponse(sum *billing.BatchSummary) dto.RetryBatchResponse {
	out := dto.RetryBatchResponse{
		Processed:  sum.Processed,
		Authorized: sum.Authorized,
		Rejected:   sum.Rejected,
		Skipped:    sum.Skipped,
		Pending:    sum.Pending,
		Errors:     sum.Errors,
		Mock:       sum.Mock,
		Source:     sum.Source,
		Items:      make([]dto.BatchItemResponse, 0, len(sum.Items)),
	}
	for _, it := range sum.Items {
		out.Items = append(out.Items, dto.BatchItemResponse(it))
	}
	return out
}

func toCertificateResponse(chk *billing.CertificateCheck) dto.CertificateCheckResponse {
	out := dto.CertificateCheckResponse{
		CompanyID:    chk.CompanyID,
		CUIT:         chk.CUIT,
		CUITValid:    chk.CUITValid,
		Environment:  chk.Environment,
		PointOfSale:  chk.PointOfSale,
		OK:           chk.Certificate.OK,
		CanAuthorize: chk.CanAuthorize,
		Issues:       make([]dto.CertificateIssue, 0, len(chk.Certificate.Issues)),
	}
	if d := chk.Certificate.Details; d != nil {
		details := dto.CertificateDetails(*d)
		out.Details = &details
	}
	for _, i := range chk.Certificate.Issues {
		out.Issues = append(out.Issues, dto.CertificateIssue(i))
	}
	return out
}

func toLibroIVAResponse(e *libroiva.Export) dto.LibroIVAResponse {
	out := dto.LibroIVAResponse{
		Filename: e.Filename,
		Checksum: e.Checksum,
		Sales:    e.Sales,
		Voided:   e.Voided,
		Records:  e.Records,
		Net:      e.Net,
		Tax:      e.Tax,
		Total:    e.Total,
		Rates:    make([]dto.TaxRateSummaryResponse, 0, len(e.Rates)),
		Content:  e.Content,
	}
	for _, r := range e.Rates {
		out.Rates = append(out.Rates, dto.TaxRateSummaryResponse(r))
	}
	return out
}
