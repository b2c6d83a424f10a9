package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/arca-facturacion/internal/domain"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `
	id, company_id, number, channel, date,
	customer_name, customer_tax_id, customer_tax_condition,
	subtotal, discount, tax_amount, total, tax_rate,
	status, legacy_status, retry_count,
	arca_document_type, arca_point_of_sale, arca_sequence,
	cae, cae_expiry, arca_status, arca_last_response_at,
	arca_last_error_code, arca_last_error_message,
	created_at, updated_at`

// Las actualizaciones fiscales nunca pisan una factura autorizada o anulada.
const mutableGuard = `status NOT IN ('AUTHORIZED', 'CANCELLED')`

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	var (
		customerName, customerTaxID, customerCond *string
		legacy, cae, caeExpiry, fiscalStatus      *string
		errCode, errMsg                           *string
		docType, pos                              *int
		seq                                       *int64
	)
	err := row.Scan(
		&inv.ID, &inv.CompanyID, &inv.Number, &inv.Channel, &inv.Date,
		&customerName, &customerTaxID, &customerCond,
		&inv.Subtotal, &inv.Discount, &inv.TaxAmount, &inv.Total, &inv.TaxRate,
		&inv.Status, &legacy, &inv.RetryCount,
		&docType, &pos, &seq,
		&cae, &caeExpiry, &fiscalStatus, &inv.Fiscal.LastResponseAt,
		&errCode, &errMsg,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.CustomerName = derefStr(customerName)
	inv.CustomerTaxID = derefStr(customerTaxID)
	inv.CustomerTaxCondition = derefStr(customerCond)
	inv.LegacyStatus = derefStr(legacy)
	inv.Fiscal.DocumentType = derefInt(docType)
	inv.Fiscal.PointOfSale = derefInt(pos)
	inv.Fiscal.Sequence = derefInt(seq)
	inv.Fiscal.CAE = derefStr(cae)
	inv.Fiscal.CAEExpiry = derefStr(caeExpiry)
	inv.Fiscal.Status = derefStr(fiscalStatus)
	inv.Fiscal.LastErrorCode = derefStr(errCode)
	inv.Fiscal.LastErrorMessage = derefStr(errMsg)
	return &inv, nil
}

func (r *InvoiceRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Invoice, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var list []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// GetByID obtiene una factura por ID.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("factura %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// ListPendingCAE facturas ARCA pendientes o rechazadas, las más antiguas primero.
func (r *InvoiceRepo) ListPendingCAE(ctx context.Context, limit int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE upper(channel) = 'ARCA'
		  AND ` + mutableGuard + `
		  AND (status IN ('PENDING_CAE', 'REJECTED')
		       OR arca_status = 'PENDING'
		       OR upper(trim(legacy_status)) = ANY($1))
		ORDER BY created_at ASC, id ASC
		LIMIT $2`
	return r.list(ctx, "list pending cae", query, entity.LegacyPendingStatuses, limit)
}

// ListForPeriod facturas ARCA de la empresa con fecha en [from, to).
func (r *InvoiceRepo) ListForPeriod(ctx context.Context, companyID string, from, to time.Time) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE company_id = $1 AND upper(channel) = 'ARCA' AND date >= $2 AND date < $3
		ORDER BY date ASC, id ASC`
	return r.list(ctx, "list invoices for period", query, companyID, from, to)
}

// UpdateDocumentType persiste la corrección del tipo de comprobante.
func (r *InvoiceRepo) UpdateDocumentType(ctx context.Context, id string, documentType int) error {
	query := `UPDATE invoices SET arca_document_type = $2, updated_at = now()
		WHERE id = $1 AND ` + mutableGuard
	return r.guardedUpdate(ctx, "update document type", id, query, id, documentType)
}

// ReserveFiscalKey registra la clave fiscal del pedido en curso.
func (r *InvoiceRepo) ReserveFiscalKey(ctx context.Context, id string, pointOfSale, documentType int, sequence int64) error {
	query := `UPDATE invoices SET
			arca_point_of_sale = $2,
			arca_document_type = $3,
			arca_sequence = $4,
			arca_status = 'PENDING',
			updated_at = now()
		WHERE id = $1 AND ` + mutableGuard
	return r.guardedUpdate(ctx, "reserve fiscal key", id, query, id, pointOfSale, documentType, sequence)
}

// MarkAuthorized pasa la factura a AUTHORIZED y limpia el último error.
func (r *InvoiceRepo) MarkAuthorized(ctx context.Context, id string, fiscal entity.FiscalData) error {
	query := `UPDATE invoices SET
			status = 'AUTHORIZED',
			arca_status = 'AUTHORIZED',
			arca_document_type = $2,
			arca_point_of_sale = $3,
			arca_sequence = $4,
			cae = $5,
			cae_expiry = $6,
			arca_last_response_at = $7,
			arca_last_error_code = NULL,
			arca_last_error_message = NULL,
			updated_at = now()
		WHERE id = $1 AND ` + mutableGuard
	return r.guardedUpdate(ctx, "mark authorized", id, query,
		id, fiscal.DocumentType, fiscal.PointOfSale, fiscal.Sequence,
		fiscal.CAE, fiscal.CAEExpiry, fiscal.LastResponseAt,
	)
}

// MarkRejected pasa la factura a REJECTED, guarda el error de ARCA e incrementa retry_count.
// Pto vta, tipo y número quedan como referencia del intento; con arca_status REJECTED el próximo
// intento no los sondea y pide un número nuevo.
func (r *InvoiceRepo) MarkRejected(ctx context.Context, id string, fiscal entity.FiscalData) error {
	query := `UPDATE invoices SET
			status = 'REJECTED',
			arca_status = 'REJECTED',
			arca_document_type = COALESCE($2, arca_document_type),
			arca_point_of_sale = COALESCE($3, arca_point_of_sale),
			arca_sequence = COALESCE($4, arca_sequence),
			arca_last_response_at = $5,
			arca_last_error_code = $6,
			arca_last_error_message = $7,
			retry_count = retry_count + 1,
			updated_at = now()
		WHERE id = $1 AND ` + mutableGuard
	return r.guardedUpdate(ctx, "mark rejected", id, query,
		id, nullIfZero(fiscal.DocumentType), nullIfZero(fiscal.PointOfSale), nullIfZero(fiscal.Sequence),
		fiscal.LastResponseAt, nullIfEmpty(fiscal.LastErrorCode), nullIfEmpty(fiscal.LastErrorMessage),
	)
}

// guardedUpdate distingue "no existe" de "estado terminal" cuando el UPDATE no afecta filas.
func (r *InvoiceRepo) guardedUpdate(ctx context.Context, op, id, query string, args ...any) error {
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: factura %s: %w", op, id, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: factura %s autorizada o anulada: %w", op, id, domain.ErrConflict)
}
