package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/arca-facturacion/internal/application/billing"
	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
)

var _ billing.FiscalTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunFiscal ejecuta fn con los repos de factura y auditoría atados a una misma transacción:
// el cambio de estado y su fila de auditoría se confirman juntos o no se confirman.
func (r *TxRunner) RunFiscal(ctx context.Context, fn func(
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.InvoiceAuditRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewInvoiceRepository(tx), NewInvoiceAuditRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
