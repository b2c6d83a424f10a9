package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
)

// Resultados simulados del modo mock.
const (
	MockApproved = "APPROVED"
	MockRejected = "REJECTED"
	MockPending  = "PENDING"
)

const (
	mockRejectCode = "MOCK"
	mockRejectMsg  = "rechazo simulado"
	mockCAEDays    = 10
)

// simulate aplica el resultado forzado (APPROVED si no hay) con las mismas transiciones y auditoría
// que una respuesta real, sin llamar a ARCA.
func (s *RetryBatchService) simulate(ctx context.Context, inv *entity.Invoice, item BatchItem, source, actor string) BatchItem {
	outcome := s.cfg.ForcedOutcome
	if outcome == "" {
		outcome = MockApproved
	}
	key := inv.Fiscal
	req := auditRequest{PointOfSale: key.PointOfSale, DocumentType: key.DocumentType, Sequence: key.Sequence, Mock: true}
	now := s.now()

	var err error
	switch outcome {
	case MockApproved:
		fiscal := entity.FiscalData{
			DocumentType:   key.DocumentType,
			PointOfSale:    key.PointOfSale,
			Sequence:       key.Sequence,
			CAE:            MockCAE(key.PointOfSale, key.DocumentType, key.Sequence),
			CAEExpiry:      now.AddDate(0, 0, mockCAEDays).Format("20060102"),
			Status:         entity.FiscalStatusAuthorized,
			LastResponseAt: &now,
		}
		resp := auditResponse{Result: "A", CAE: fiscal.CAE, CAEExpiry: fiscal.CAEExpiry, Mock: true}
		err = s.cae.commitAuthorized(ctx, inv, fiscal, entity.AuditActionCAEAuthorized, source, actor, req, resp)
		item.Outcome = OutcomeAuthorized
	case MockRejected:
		fiscal := entity.FiscalData{
			DocumentType:     key.DocumentType,
			PointOfSale:      key.PointOfSale,
			Sequence:         key.Sequence,
			Status:           entity.FiscalStatusRejected,
			LastResponseAt:   &now,
			LastErrorCode:    mockRejectCode,
			LastErrorMessage: mockRejectMsg,
		}
		resp := auditResponse{Result: "R", Mock: true}
		err = s.cae.commitRejected(ctx, inv, fiscal, source, actor, req, resp)
		item.Outcome = OutcomeRejected
		item.Code, item.Message = mockRejectCode, mockRejectMsg
	default:
		err = s.cae.commitPending(ctx, inv, source, actor, req, auditResponse{Result: MockPending, Mock: true})
		item.Outcome = OutcomePending
	}

	if err != nil {
		s.log.Invoice(inv.CompanyID, inv.ID).Error().Err(err).Msg("no se pudo aplicar el resultado simulado")
		item.Outcome = OutcomeError
		item.Message = err.Error()
		return item
	}
	s.recorder.CAEAttempt(source, item.Outcome)
	return item
}

// MockCAE código de 14 dígitos determinístico a partir de la clave fiscal.
func MockCAE(pointOfSale, documentType int, sequence int64) string {
	return fmt.Sprintf("%02d%03d%09d", documentType%100, pointOfSale%1000, sequence%1_000_000_000)
}
