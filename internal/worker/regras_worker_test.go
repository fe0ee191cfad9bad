package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"financas/internal/amqp"
	"financas/internal/core"
	"financas/internal/services"
	"financas/internal/storage"
)

func TestHandleRegrasMessage(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "financas-test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	inst, err := repo.GetOrCreateInstituicao(ctx, core.InstituicaoFinanceira{Nome: "Banco do Brasil", Codigo: "BB"})
	if err != nil {
		t.Fatal(err)
	}
	conta, err := repo.GetOrCreateConta(ctx, core.Conta{InstituicaoID: inst.ID, Numero: "55667-8", Agencia: "1234-5"})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := repo.CreateTransacao(ctx, core.Transacao{
		ContaID:   conta.ID,
		FitID:     "W1",
		Data:      time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC),
		Descricao: "aplicacao bb rende facil",
		Valor:     decimal.RequireFromString("-300.00"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateRegraOcultacao(ctx, core.RegraOcultacao{
		Nome:       "aplicações automáticas",
		Padrao:     "rende facil",
		TipoPadrao: core.PadraoContem,
		Ativo:      true,
	}); err != nil {
		t.Fatal(err)
	}

	w := NewRegrasWorker(services.NewRegrasService(repo), 50)
	msg := amqp.NewRegrasPendentesMessage(conta.ID, amqp.OrigemImportOFX)
	if err := w.HandleRegrasMessage(ctx, msg); err != nil {
		t.Fatalf("HandleRegrasMessage: %v", err)
	}

	transacoes, err := repo.ListTransacoes(ctx, storage.TransacaoFilter{IncluirOcultas: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(transacoes) != 1 || transacoes[0].ID != tx.ID || !transacoes[0].Oculta {
		t.Errorf("transação deveria estar oculta após o evento: %+v", transacoes)
	}
}
