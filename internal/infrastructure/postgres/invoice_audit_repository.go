package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/arca-facturacion/internal/domain"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
)

var _ repository.InvoiceAuditRepository = (*InvoiceAuditRepo)(nil)

// InvoiceAuditRepo sólo inserta; la tabla no tiene UPDATE ni DELETE desde la aplicación.
type InvoiceAuditRepo struct {
	q Querier
}

// NewInvoiceAuditRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceAuditRepository(q Querier) *InvoiceAuditRepo {
	return &InvoiceAuditRepo{q: q}
}

func (r *InvoiceAuditRepo) Append(ctx context.Context, a *entity.InvoiceAudit) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO invoice_audits (id, invoice_id, company_id, action, request, response, actor, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		a.ID, a.InvoiceID, a.CompanyID, a.Action,
		jsonOrNull(a.Request), jsonOrNull(a.Response),
		nullIfEmpty(a.Actor), a.Source, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("auditoría %s duplicada: %w", a.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert invoice audit: %w", err)
	}
	return nil
}
