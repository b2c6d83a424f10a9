package repository

import (
	"context"
	"time"

	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
)

// InvoiceRepository puerto de persistencia para facturas con canal fiscal.
// Las actualizaciones son por campos puntuales; ninguna toca facturas AUTHORIZED o CANCELLED
// (en ese caso devuelven domain.ErrConflict).
type InvoiceRepository interface {
	// GetByID devuelve domain.ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	// ListPendingCAE facturas ARCA pendientes o rechazadas por estado principal, estado fiscal o estado heredado.
	ListPendingCAE(ctx context.Context, limit int) ([]*entity.Invoice, error)
	// ListForPeriod facturas ARCA de la empresa con fecha en [from, to).
	ListForPeriod(ctx context.Context, companyID string, from, to time.Time) ([]*entity.Invoice, error)
	UpdateDocumentType(ctx context.Context, id string, documentType int) error
	// ReserveFiscalKey guarda pto vta, tipo y número antes de enviar el pedido y deja el estado fiscal
	// en PENDING hasta conocer la respuesta.
	ReserveFiscalKey(ctx context.Context, id string, pointOfSale, documentType int, sequence int64) error
	// MarkAuthorized pasa la factura a AUTHORIZED con CAE, vencimiento, pto vta, tipo y número.
	MarkAuthorized(ctx context.Context, id string, fiscal entity.FiscalData) error
	// MarkRejected pasa la factura a REJECTED, guarda el error de ARCA e incrementa retry_count.
	MarkRejected(ctx context.Context, id string, fiscal entity.FiscalData) error
}
