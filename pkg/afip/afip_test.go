package afip_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

func TestValidateCUIT(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"con guiones", "20-12345678-6", false},
		{"sólo dígitos", "33693450239", false},
		{"verificador incorrecto", "20-12345678-5", true},
		{"longitud corta", "2012345678", true},
		{"vacía", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := afip.ValidateCUIT(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseCUIT_Normaliza(t *testing.T) {
	got, err := afip.ParseCUIT(" 33-69345023-9 ")
	require.NoError(t, err)
	assert.Equal(t, "33693450239", got)
	assert.Equal(t, "33-69345023-9", afip.FormatCUIT(got))
	assert.True(t, afip.IsValidLength("20.12345678.6"))
	assert.False(t, afip.IsValidLength("12345678"))
}

func TestConsumerCounterpart(t *testing.T) {
	assert.Equal(t, afip.CbteFacturaB, afip.ConsumerCounterpart(afip.CbteFacturaA))
	assert.Equal(t, afip.CbteNotaDebitoB, afip.ConsumerCounterpart(afip.CbteNotaDebitoA))
	assert.Equal(t, afip.CbteNotaCreditoB, afip.ConsumerCounterpart(afip.CbteNotaCreditoA))
	assert.Equal(t, afip.CbteFacturaC, afip.ConsumerCounterpart(afip.CbteFacturaC))
	assert.Equal(t, afip.ClassB, afip.CbteClass(afip.CbteNotaCreditoB))
	assert.Equal(t, afip.ClassUnknown, afip.CbteClass(99))
}

func TestAlicuotaID(t *testing.T) {
	assert.Equal(t, afip.AlicuotaVeintiuno, afip.AlicuotaID(decimal.NewFromInt(21)))
	assert.Equal(t, afip.AlicuotaVeintiuno, afip.AlicuotaID(decimal.RequireFromString("0.21")))
	assert.Equal(t, afip.AlicuotaDiezCinco, afip.AlicuotaID(decimal.RequireFromString("10.50")))
	assert.Equal(t, afip.AlicuotaCero, afip.AlicuotaID(decimal.Zero))
	assert.Equal(t, afip.AlicuotaIndefinida, afip.AlicuotaID(decimal.NewFromInt(19)))
}

func TestInferRate(t *testing.T) {
	assert.True(t, afip.InferRate(decimal.NewFromInt(1000), decimal.NewFromInt(210)).Equal(decimal.NewFromInt(21)))
	assert.True(t, afip.InferRate(decimal.NewFromInt(1000), decimal.RequireFromString("104.99")).Equal(decimal.RequireFromString("10.5")))
	assert.True(t, afip.InferRate(decimal.Zero, decimal.NewFromInt(10)).IsZero())
}

func TestCondicionIVA(t *testing.T) {
	assert.Equal(t, afip.CondicionResponsableInscripto, afip.NormalizeCondicionIVA("Responsable Inscripto"))
	assert.Equal(t, afip.CondicionMonotributo, afip.NormalizeCondicionIVA("mt"))
	assert.Equal(t, 1, afip.CondicionIVAReceptorID(afip.CondicionResponsableInscripto))
	assert.Equal(t, 5, afip.CondicionIVAReceptorID(""))
	assert.False(t, afip.IsKnownCondicionIVA("GRAN_CONTRIBUYENTE"))
}
