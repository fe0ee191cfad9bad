// Package cli concentra a inicialização repetida entre cmd/financas,
// cmd/financas-worker e cmd/financasctl.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"financas/internal/config"
	"financas/internal/storage"
)

// SetupLogger configura o logger estruturado padrão. Em desenvolvimento o
// nível cai para debug.
func SetupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Dev() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadEnvFile carrega o .env para desenvolvimento local. A ausência do
// arquivo é silenciosa.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig carrega e valida a configuração; sai do processo em
// caso de erro.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuração inválida", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite abre o repositório SQLite (criando o banco e rodando as
// migrações); sai do processo em caso de erro.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Falha ao abrir o banco SQLite", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown instala o tratamento de SIGINT/SIGTERM. Devolve um
// contexto cancelado no desligamento e um canal fechado quando o cleanup
// termina.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Sinal de desligamento recebido", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup()
		}

		cancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Tempo de desligamento esgotado")
		case <-time.After(2 * time.Second):
			logger.Info("Desligamento concluído")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown bloqueia até o desligamento completar.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
