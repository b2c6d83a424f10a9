package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/arca-facturacion/internal/domain"
	"github.com/jhoicas/arca-facturacion/internal/domain/libroiva"
	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
)

// LibroIVAUseCase arma el archivo de ventas del período con las facturas de la empresa.
type LibroIVAUseCase struct {
	invoiceRepo repository.InvoiceRepository
	configRepo  repository.FiscalConfigRepository
}

// NewLibroIVAUseCase construye el caso de uso.
func NewLibroIVAUseCase(invoiceRepo repository.InvoiceRepository, configRepo repository.FiscalConfigRepository) *LibroIVAUseCase {
	return &LibroIVAUseCase{invoiceRepo: invoiceRepo, configRepo: configRepo}
}

// Export genera el archivo de year/month con la CUIT de la configuración fiscal.
// Período inválido -> domain.ErrInvalidInput; sin configuración -> domain.ErrNotFound.
func (uc *LibroIVAUseCase) Export(ctx context.Context, companyID string, year, month int) (*libroiva.Export, error) {
	if month < 1 || month > 12 || year < 1000 || year > 9999 {
		return nil, fmt.Errorf("período %04d-%02d: %w", year, month, domain.ErrInvalidInput)
	}
	cfg, err := uc.configRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("configuración fiscal: %w", err)
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	invoices, err := uc.invoiceRepo.ListForPeriod(ctx, companyID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("facturas del período: %w", err)
	}

	out, err := libroiva.Generate(libroiva.Period{CUIT: cfg.CUIT, Year: year, Month: month}, invoices)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return out, nil
}
