package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/arca-facturacion/internal/application/billing"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
)

type countingRecorder struct {
	billing.NopRecorder
	refreshOK, refreshFail int
}

func (r *countingRecorder) TokenRefresh(ok bool) {
	if ok {
		r.refreshOK++
		return
	}
	r.refreshFail++
}

func TestTokenCache_ReusaTicketVigente(t *testing.T) {
	cfg := completeConfig(companyID)
	cfg.Token = entity.AuthToken{Token: "T", Sign: "S", ExpiresAt: fixedNow.Add(2 * time.Hour)}
	configs := newMemConfigs(cfg)
	authority := newFakeAuthority()
	cache := billing.NewTokenCache(configs, authority, nil, nil).WithClock(clock)

	auth, err := cache.Auth(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "T", auth.Token)
	assert.Equal(t, "S", auth.Sign)
	assert.Equal(t, issuerCUIT, auth.CUIT)
	assert.Equal(t, entity.EnvironmentHomologacion, auth.Environment)
	assert.Zero(t, authority.tokenCalls)
	assert.Zero(t, configs.updates)
}

func TestTokenCache_RenuevaDentroDelMargen(t *testing.T) {
	cfg := completeConfig(companyID)
	cfg.Token = entity.AuthToken{Token: "T", Sign: "S", ExpiresAt: fixedNow.Add(billing.TokenRefreshMargin - time.Minute)}
	configs := newMemConfigs(cfg)
	authority := newFakeAuthority()
	rec := &countingRecorder{}
	cache := billing.NewTokenCache(configs, authority, rec, nil).WithClock(clock)

	auth, err := cache.Auth(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, "T", auth.Token)
	assert.Equal(t, 1, authority.tokenCalls)
	assert.Equal(t, 1, rec.refreshOK)

	stored, err := configs.GetByCompanyID(context.Background(), companyID)
	require.NoError(t, err)
	assert.Equal(t, auth.Token, stored.Token.Token)
	assert.Equal(t, auth.Token, cfg.Token.Token, "la configuración en memoria queda actualizada")

	// Segundo pedido con la configuración actualizada: no vuelve al WSAA.
	_, err = cache.Auth(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, authority.tokenCalls)
}

func TestTokenCache_FalloAlPersistirNoImpideUsarElTicket(t *testing.T) {
	cfg := completeConfig(companyID)
	configs := newMemConfigs(cfg)
	configs.failUpdate = errors.New("db: deadlock detected")
	authority := newFakeAuthority()
	cache := billing.NewTokenCache(configs, authority, nil, nil).WithClock(clock)

	auth, err := cache.Auth(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, auth.Token)
	assert.Equal(t, 1, configs.updates)
}

func TestTokenCache_ErrorDelWSAA(t *testing.T) {
	cfg := completeConfig(companyID)
	authority := newFakeAuthority()
	authority.tokenErr = errNetwork
	rec := &countingRecorder{}
	cache := billing.NewTokenCache(newMemConfigs(cfg), authority, rec, nil).WithClock(clock)

	_, err := cache.Auth(context.Background(), cfg)
	require.ErrorIs(t, err, errNetwork)
	assert.Equal(t, 1, rec.refreshFail)
	assert.True(t, cfg.Token.IsZero())
}
