package repository

import (
	"context"

	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
)

// FiscalConfigRepository puerto de persistencia de la configuración fiscal por empresa.
type FiscalConfigRepository interface {
	// GetByCompanyID devuelve domain.ErrNotFound si la empresa no tiene configuración.
	GetByCompanyID(ctx context.Context, companyID string) (*entity.FiscalConfiguration, error)
	// UpdateToken guarda el ticket de acceso del WSAA (token, sign, vencimiento).
	UpdateToken(ctx context.Context, companyID string, token entity.AuthToken) error
}
