// Comando cae-retry procesa una tanda de facturas pendientes de CAE y termina. Pensado para cron.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/jhoicas/arca-facturacion/internal/app"
	"github.com/jhoicas/arca-facturacion/internal/application/billing"
	"github.com/jhoicas/arca-facturacion/internal/domain"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/pkg/config"
	"github.com/jhoicas/arca-facturacion/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("cae-retry", pflag.ExitOnError)
	limit := flags.IntP("limit", "n", 0, "máximo de facturas a procesar (0 = ARCA_RETRY_BATCH_SIZE)")
	source := flags.String("source", entity.AuditSourceCron, "origen registrado en la auditoría (batch|cron|manual)")
	actor := flags.String("actor", "cae-retry", "actor registrado en la auditoría")
	mock := flags.Bool("mock", false, "simular respuestas de ARCA (no productivo)")
	mockOutcome := flags.String("mock-outcome", "", "resultado simulado: APPROVED|REJECTED|PENDING")
	_ = flags.Parse(os.Args[1:])

	if err := run(*limit, *source, *actor, *mock, *mockOutcome); err != nil {
		fmt.Fprintln(os.Stderr, "cae-retry:", err)
		os.Exit(1)
	}
}

func run(limit int, source, actor string, mock bool, mockOutcome string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cargar configuración: %w", err)
	}
	if mock {
		cfg.ARCA.Mock = true
	}
	if mockOutcome != "" {
		cfg.ARCA.MockOutcome = strings.ToUpper(mockOutcome)
	}
	switch cfg.ARCA.MockOutcome {
	case "", billing.MockApproved, billing.MockRejected, billing.MockPending:
	default:
		return fmt.Errorf("--mock-outcome inválido %q", cfg.ARCA.MockOutcome)
	}
	if cfg.App.Env == "production" && cfg.ARCA.MockEnabled() {
		return errors.New("el modo simulado no se permite con APP_ENV=production")
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: "cae-retry"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer services.Close()

	sum, err := services.Batch.Run(ctx, billing.RunOptions{Limit: limit, Source: source, Actor: actor})
	if errors.Is(err, domain.ErrBatchInProgress) {
		log.Warn().Msg("otra corrida tiene el lock; nada que hacer")
		return nil
	}
	if err != nil {
		return err
	}

	for _, it := range sum.Items {
		ev := log.Info()
		if it.Outcome == billing.OutcomeError {
			ev = log.Warn()
		}
		ev.Str("invoice_id", it.InvoiceID).
			Str("company_id", it.CompanyID).
			Str("outcome", it.Outcome).
			Str("code", it.Code).
			Str("message", it.Message).
			Msg("factura procesada")
	}
	return nil
}
