// Package services orquestra importações e aplicação de regras sobre o
// repositório.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"financas/internal/core"
	"financas/internal/storage"
)

// RegrasService aplica as regras de ocultação e de membro sobre as
// transações de conta e os lançamentos de fatura.
type RegrasService struct {
	repo *storage.SQLiteRepository
}

func NewRegrasService(repo *storage.SQLiteRepository) *RegrasService {
	return &RegrasService{repo: repo}
}

// AplicarOcultacao reavalia todas as transações contra as regras ativas.
// Só grava as linhas cujo estado efetivo mudou; devolve quantas mudaram.
func (s *RegrasService) AplicarOcultacao(ctx context.Context) (int, error) {
	regras, err := s.repo.ListRegrasOcultacao(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("carregar regras de ocultação: %w", err)
	}

	transacoes, err := s.repo.ListTransacoes(ctx, storage.TransacaoFilter{IncluirOcultas: true})
	if err != nil {
		return 0, fmt.Errorf("listar transações: %w", err)
	}

	alteradas := 0
	for _, t := range transacoes {
		efetiva := core.OcultaEfetiva(t.OcultaManual, t.Descricao, regras)
		if efetiva == t.Oculta {
			continue
		}
		if err := s.repo.SetOculta(ctx, t.ID, efetiva); err != nil {
			return alteradas, err
		}
		alteradas++
	}

	slog.InfoContext(ctx, "Regras de ocultação aplicadas",
		"transacoes", len(transacoes),
		"regras", len(regras),
		"alteradas", alteradas)
	return alteradas, nil
}

// AplicarMembros atribui membros às transações que ainda não têm nenhum,
// respeitando a ordem de prioridade das regras. Atribuições manuais nunca são
// sobrescritas porque transações com membros ficam fora do lote.
func (s *RegrasService) AplicarMembros(ctx context.Context, batchSize int) (int, error) {
	regras, err := s.repo.ListRegrasMembro(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("carregar regras de membro: %w", err)
	}
	if len(regras) == 0 {
		return 0, nil
	}

	atribuidas := 0
	var cursor int64
	for {
		lote, err := s.repo.ListTransacoesSemMembros(ctx, cursor, batchSize)
		if err != nil {
			return atribuidas, fmt.Errorf("listar transações sem membros: %w", err)
		}
		if len(lote) == 0 {
			break
		}

		for _, t := range lote {
			cursor = t.ID
			membroIDs := s.membrosPara(t, regras)
			if len(membroIDs) == 0 {
				continue
			}
			if err := s.repo.SetMembrosTransacao(ctx, t.ID, membroIDs); err != nil {
				return atribuidas, err
			}
			atribuidas++
		}

		if len(lote) < batchSize {
			break
		}
	}

	slog.InfoContext(ctx, "Regras de membro aplicadas", "atribuidas", atribuidas)
	return atribuidas, nil
}

func (s *RegrasService) membrosPara(t core.Transacao, regras []core.RegraMembro) []int64 {
	for _, regra := range regras {
		if regra.AplicaPara(t.Descricao, t.Valor) {
			return regra.MembroIDs
		}
	}
	return nil
}

// AplicarMembrosLancamentos atribui membros aos lançamentos de fatura que
// ainda não têm nenhum. Nos lançamentos vale a união dos membros de todas as
// regras que casam, não só a primeira: compras de cartão compartilhadas podem
// acumular mais de uma regra.
func (s *RegrasService) AplicarMembrosLancamentos(ctx context.Context, batchSize int) (int, error) {
	regras, err := s.repo.ListRegrasMembro(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("carregar regras de membro: %w", err)
	}
	if len(regras) == 0 {
		return 0, nil
	}

	atribuidos := 0
	var cursor int64
	for {
		lote, err := s.repo.ListLancamentosSemMembros(ctx, cursor, batchSize)
		if err != nil {
			return atribuidos, fmt.Errorf("listar lançamentos sem membros: %w", err)
		}
		if len(lote) == 0 {
			break
		}

		for _, l := range lote {
			cursor = l.ID
			membroIDs := membrosUniao(l.Descricao, l.Valor, regras)
			if len(membroIDs) == 0 {
				continue
			}
			if err := s.repo.SetMembrosLancamento(ctx, l.ID, membroIDs); err != nil {
				return atribuidos, err
			}
			atribuidos++
		}

		if len(lote) < batchSize {
			break
		}
	}

	slog.InfoContext(ctx, "Regras de membro aplicadas aos lançamentos", "atribuidos", atribuidos)
	return atribuidos, nil
}

func membrosUniao(descricao string, valor decimal.Decimal, regras []core.RegraMembro) []int64 {
	uniao := map[int64]bool{}
	for _, regra := range regras {
		if !regra.AplicaPara(descricao, valor) {
			continue
		}
		for _, id := range regra.MembroIDs {
			uniao[id] = true
		}
	}
	if len(uniao) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(uniao))
	for id := range uniao {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AplicarTudo roda ocultação e membros em sequência; é o que o worker executa
// ao receber um evento de importação.
func (s *RegrasService) AplicarTudo(ctx context.Context, batchSize int) error {
	if _, err := s.AplicarOcultacao(ctx); err != nil {
		return err
	}
	if _, err := s.AplicarMembros(ctx, batchSize); err != nil {
		return err
	}
	if _, err := s.AplicarMembrosLancamentos(ctx, batchSize); err != nil {
		return err
	}
	return nil
}
