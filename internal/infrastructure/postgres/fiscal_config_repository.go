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

var _ repository.FiscalConfigRepository = (*FiscalConfigRepo)(nil)

// FiscalConfigRepo implementación de FiscalConfigRepository.
type FiscalConfigRepo struct {
	q Querier
}

// NewFiscalConfigRepository construye el adaptador.
func NewFiscalConfigRepository(q Querier) *FiscalConfigRepo {
	return &FiscalConfigRepo{q: q}
}

// GetByCompanyID configuración fiscal de la empresa con su ticket cacheado.
func (r *FiscalConfigRepo) GetByCompanyID(ctx context.Context, companyID string) (*entity.FiscalConfiguration, error) {
	const query = `
		SELECT id, company_id, COALESCE(cuit, ''), COALESCE(cert_path, ''), COALESCE(key_path, ''),
		       COALESCE(point_of_sale, 0), environment,
		       wsaa_token, wsaa_sign, wsaa_expires_at, updated_at
		FROM fiscal_configurations WHERE company_id = $1`
	var c entity.FiscalConfiguration
	var token, sign *string
	var expires *time.Time
	err := r.q.QueryRow(ctx, query, companyID).Scan(
		&c.ID, &c.CompanyID, &c.CUIT, &c.CertPath, &c.KeyPath,
		&c.PointOfSale, &c.Environment,
		&token, &sign, &expires, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("configuración fiscal de %s: %w", companyID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get fiscal configuration: %w", err)
	}
	c.Token.Token = derefStr(token)
	c.Token.Sign = derefStr(sign)
	if expires != nil {
		c.Token.ExpiresAt = *expires
	}
	return &c, nil
}

// UpdateToken guarda token, sign y vencimiento del WSAA.
func (r *FiscalConfigRepo) UpdateToken(ctx context.Context, companyID string, token entity.AuthToken) error {
	const query = `
		UPDATE fiscal_configurations
		SET wsaa_token = $2, wsaa_sign = $3, wsaa_expires_at = $4, updated_at = now()
		WHERE company_id = $1`
	tag, err := r.q.Exec(ctx, query, companyID, token.Token, token.Sign, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update wsaa token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update wsaa token %s: %w", companyID, domain.ErrNotFound)
	}
	return nil
}
