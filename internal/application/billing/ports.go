package billing

import (
	"context"
	"time"

	"github.com/jhoicas/arca-facturacion/internal/domain/repository"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca/credentials"
)

// FiscalTxRunner ejecuta fn con repos de factura y auditoría dentro de una misma transacción.
// El cambio de estado de la factura y su fila de auditoría se confirman juntos.
type FiscalTxRunner interface {
	RunFiscal(ctx context.Context, fn func(
		invoiceRepo repository.InvoiceRepository,
		auditRepo repository.InvoiceAuditRepository,
	) error) error
}

// BatchLocker lock distribuido del reintento masivo. ok=false sin error: otro proceso lo tiene.
type BatchLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// CertificateValidator valida certificado y llave de una empresa.
type CertificateValidator interface {
	Validate(ctx context.Context, certPath, keyPath, cuit string) credentials.Result
}

// Recorder métricas del flujo de CAE.
type Recorder interface {
	CAEAttempt(source, outcome string)
	TokenRefresh(ok bool)
	BatchRun(mock bool, authorized, rejected, skipped, errors int, elapsed time.Duration)
}

// NopRecorder descarta todas las métricas.
type NopRecorder struct{}

func (NopRecorder) CAEAttempt(string, string)                        {}
func (NopRecorder) TokenRefresh(bool)                                {}
func (NopRecorder) BatchRun(bool, int, int, int, int, time.Duration) {}

// directTx aplica fn sobre los repos sin transacción (cuando no se inyecta un FiscalTxRunner).
type directTx struct {
	invoiceRepo repository.InvoiceRepository
	auditRepo   repository.InvoiceAuditRepository
}

func (d directTx) RunFiscal(_ context.Context, fn func(repository.InvoiceRepository, repository.InvoiceAuditRepository) error) error {
	return fn(d.invoiceRepo, d.auditRepo)
}
