package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"financas/internal/amqp"
	"financas/internal/cli"
	"financas/internal/services"
	"financas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)

	logger.Info("Iniciando financas-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	regrasWorker := worker.NewRegrasWorker(services.NewRegrasService(repo), cfg.RegrasBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := regrasWorker.StartupCheck(ctx); err != nil {
		logger.Error("Verificação inicial falhou", "error", err)
		// segue operando: a reaplicação periódica cobre o atraso
	}

	// sem broker o worker vive só da reaplicação periódica
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Falha ao conectar no AMQP", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			err := amqpClient.ConsumeRegrasPendentes(ctx, func(msg *amqp.RegrasPendentesMessage) error {
				return regrasWorker.HandleRegrasMessage(ctx, msg)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Consumo de mensagens interrompido", "error", err)
				cancel()
			}
		}()
	} else {
		logger.Info("AMQP_URL vazio; operando somente com reaplicação periódica")
	}

	go regrasWorker.RunPeriodico(ctx, cfg.RegrasInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Sinal de desligamento recebido", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Contexto cancelado")
	}

	cancel()
	time.Sleep(500 * time.Millisecond)
	logger.Info("financas-worker encerrado")
}
