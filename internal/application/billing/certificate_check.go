package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca/credentials"
	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

// CertificateCheck resultado de validar el material configurado de una empresa.
type CertificateCheck struct {
	CompanyID    string
	CUIT         string
	CUITValid    bool // dígito verificador correcto
	Environment  string
	PointOfSale  int
	Certificate  credentials.Result
	CanAuthorize bool // configuración completa, CUIT válida y sin observaciones bloqueantes
}

// CertificateCheckUseCase valida certificado, llave y CUIT de la configuración fiscal.
type CertificateCheckUseCase struct {
	configRepo repository.FiscalConfigRepository
	validator  CertificateValidator
}

// NewCertificateCheckUseCase construye el caso de uso.
func NewCertificateCheckUseCase(configRepo repository.FiscalConfigRepository, validator CertificateValidator) *CertificateCheckUseCase {
	return &CertificateCheckUseCase{configRepo: configRepo, validator: validator}
}

// Check devuelve domain.ErrNotFound si la empresa no tiene configuración fiscal.
func (uc *CertificateCheckUseCase) Check(ctx context.Context, companyID string) (*CertificateCheck, error) {
	cfg, err := uc.configRepo.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("configuración fiscal: %w", err)
	}

	out := &CertificateCheck{
		CompanyID:   companyID,
		CUIT:        afip.FormatCUIT(cfg.CUIT),
		CUITValid:   afip.ValidateCUIT(cfg.CUIT) == nil,
		Environment: cfg.Environment,
		PointOfSale: cfg.PointOfSale,
		Certificate: uc.validator.Validate(ctx, cfg.CertPath, cfg.KeyPath, cfg.CUIT),
	}
	out.CanAuthorize = cfg.IsComplete() && out.CUITValid && !out.Certificate.Blocking()
	return out, nil
}
