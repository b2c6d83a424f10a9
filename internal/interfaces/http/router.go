package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/arca-facturacion/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	CAE          CAERetrier
	Batch        BatchRunner
	Certificates CertificateChecker
	LibroIVA     LibroIVAExporter
	InternalKey  string
	Log          *logger.Logger
}

// Router registra las rutas de la API. Todo /api exige X-Internal-Key: el servicio queda detrás
// del gateway de la plataforma, que autentica al usuario y propaga X-Actor.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", InternalKeyMiddleware(deps.InternalKey))
	h := NewARCAHandler(deps.CAE, deps.Batch, deps.Certificates, deps.LibroIVA, deps.Log)

	// Reintento masivo (cron)
	api.Post("/arca/cae/retry-batch", h.RetryBatch)

	// Por empresa
	company := api.Group("/companies/:companyID")
	company.Post("/invoices/:id/cae/retry", h.RetryCAE)
	company.Post("/arca/certificate/validate", h.ValidateCertificate)
	company.Post("/arca/libro-iva", h.ExportLibroIVA)
}
