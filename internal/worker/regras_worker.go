// Package worker consome os eventos de importação e reaplica as regras.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"financas/internal/amqp"
	"financas/internal/services"
)

// RegrasWorker processa mensagens de regras pendentes vindas do broker e, como
// rede de segurança, reaplica as regras periodicamente caso mensagens se
// percam.
type RegrasWorker struct {
	regras    *services.RegrasService
	batchSize int
}

func NewRegrasWorker(regras *services.RegrasService, batchSize int) *RegrasWorker {
	return &RegrasWorker{regras: regras, batchSize: batchSize}
}

// HandleRegrasMessage processa um evento de importação.
func (w *RegrasWorker) HandleRegrasMessage(ctx context.Context, msg *amqp.RegrasPendentesMessage) error {
	slog.InfoContext(ctx, "Processando evento de regras pendentes",
		"conta_id", msg.ContaID,
		"origem", msg.Origem,
		"timestamp", msg.Timestamp)

	if err := w.regras.AplicarTudo(ctx, w.batchSize); err != nil {
		return fmt.Errorf("aplicar regras: %w", err)
	}
	return nil
}

// StartupCheck roda uma aplicação completa na subida do worker, cobrindo
// eventos perdidos enquanto ele esteve fora do ar.
func (w *RegrasWorker) StartupCheck(ctx context.Context) error {
	slog.InfoContext(ctx, "Verificação inicial de regras pendentes")
	if err := w.regras.AplicarTudo(ctx, w.batchSize); err != nil {
		return fmt.Errorf("aplicação inicial de regras: %w", err)
	}
	return nil
}

// RunPeriodico reaplica as regras a cada intervalo até o contexto encerrar.
func (w *RegrasWorker) RunPeriodico(ctx context.Context, intervalo time.Duration) {
	ticker := time.NewTicker(intervalo)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.regras.AplicarTudo(ctx, w.batchSize); err != nil {
				slog.ErrorContext(ctx, "Falha na reaplicação periódica de regras", "error", err)
			}
		}
	}
}
