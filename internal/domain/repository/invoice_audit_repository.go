package repository

import (
	"context"

	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
)

// InvoiceAuditRepository colección de auditoría de sólo inserción.
type InvoiceAuditRepository interface {
	Append(ctx context.Context, audit *entity.InvoiceAudit) error
}
