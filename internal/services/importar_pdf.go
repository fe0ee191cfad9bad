package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"financas/internal/amqp"
	"financas/internal/cartao/bb"
	"financas/internal/core"
	"financas/internal/storage"
)

// TextExtractor extrai o texto de um PDF. O padrão é bb.ExtrairTexto; os
// testes injetam um extrator de texto puro.
type TextExtractor func(path string) (string, error)

// ImportPDFOptions controla a importação de faturas.
type ImportPDFOptions struct {
	// Titular é gravado no cartão quando ele é criado nesta importação.
	Titular string
	// Replace reimporta os lançamentos de uma fatura já existente.
	Replace bool
	// Force apaga a fatura existente antes de importar, inclusive quando o
	// arquivo é o mesmo.
	Force bool
}

// ImportPDFResultado resume a importação de faturas.
type ImportPDFResultado struct {
	Arquivos    int
	Novas       int
	Atualizadas int
	Ignoradas   int
	Lancamentos int
	Avisos      []string
}

func (r ImportPDFResultado) String() string {
	return fmt.Sprintf("%d arquivo(s): %d faturas novas, %d atualizadas, %d ignoradas, %d lançamentos",
		r.Arquivos, r.Novas, r.Atualizadas, r.Ignoradas, r.Lancamentos)
}

// ImportPDFService importa faturas de cartão do Banco do Brasil a partir do
// texto dos PDFs.
type ImportPDFService struct {
	repo      *storage.SQLiteRepository
	regras    *RegrasService
	publisher Publisher
	extrair   TextExtractor
}

func NewImportPDFService(repo *storage.SQLiteRepository, regras *RegrasService, publisher Publisher) *ImportPDFService {
	return &ImportPDFService{
		repo:      repo,
		regras:    regras,
		publisher: publisher,
		extrair:   bb.ExtrairTexto,
	}
}

// WithExtractor troca o extrator de texto; usado nos testes.
func (s *ImportPDFService) WithExtractor(fn TextExtractor) *ImportPDFService {
	s.extrair = fn
	return s
}

// Importar processa um PDF ou um diretório de PDFs.
func (s *ImportPDFService) Importar(ctx context.Context, path string, opts ImportPDFOptions) (ImportPDFResultado, error) {
	var res ImportPDFResultado

	paths, err := coletarArquivos(path, ".pdf")
	if err != nil {
		return res, err
	}
	if len(paths) == 0 {
		return res, fmt.Errorf("nenhum arquivo .pdf em %s", path)
	}
	res.Arquivos = len(paths)

	for _, p := range paths {
		if err := s.importarArquivo(ctx, p, opts, &res); err != nil {
			return res, fmt.Errorf("%s: %w", p, err)
		}
	}

	slog.InfoContext(ctx, "Importação de faturas concluída", "resultado", res.String())
	return res, nil
}

func (s *ImportPDFService) importarArquivo(ctx context.Context, path string, opts ImportPDFOptions, res *ImportPDFResultado) error {
	texto, err := s.extrair(path)
	if err != nil {
		return err
	}

	dados, err := bb.ParseDadosFatura(texto, "")
	if err != nil {
		return err
	}

	inst, err := s.repo.GetOrCreateInstituicao(ctx, core.InstituicaoFinanceira{
		Nome:   "Banco do Brasil",
		Codigo: "BB",
	})
	if err != nil {
		return err
	}

	cartao, err := s.repo.GetOrCreateCartao(ctx, core.Cartao{
		InstituicaoID: inst.ID,
		Bandeira:      dados.Bandeira,
		CartaoFinal:   dados.CartaoFinal,
		Titular:       opts.Titular,
	})
	if err != nil {
		return err
	}

	existente, err := s.repo.GetFaturaPorCompetencia(ctx, cartao.ID, dados.Competencia)
	if err != nil {
		return err
	}

	atualizando := false
	switch {
	case existente == nil:
		// fatura nova

	case opts.Force:
		if err := s.repo.DeleteFatura(ctx, existente.ID); err != nil {
			return err
		}
		existente = nil

	case existente.ArquivoHash == dados.ArquivoHash && !opts.Replace:
		res.Ignoradas++
		slog.InfoContext(ctx, "Fatura já importada deste arquivo, ignorando",
			"cartao_final", dados.CartaoFinal,
			"competencia", dados.Competencia.Format("2006-01"))
		return nil

	case opts.Replace:
		if _, err := s.repo.DeleteLancamentosDaFatura(ctx, existente.ID); err != nil {
			return err
		}
		atualizando = true

	default:
		res.Ignoradas++
		res.Avisos = append(res.Avisos, fmt.Sprintf(
			"fatura %s do cartão final %s já existe com outro arquivo; use --replace",
			dados.Competencia.Format("2006-01"), dados.CartaoFinal))
		return nil
	}

	fatura := core.Fatura{
		CartaoID:     cartao.ID,
		Competencia:  dados.Competencia,
		FechadoEm:    dados.FechadoEm,
		VencimentoEm: dados.VencimentoEm,
		Total:        dados.Total,
		TemTotal:     dados.TemTotal,
		ArquivoHash:  dados.ArquivoHash,
		FonteArquivo: filepath.Base(path),
		Observacoes:  strings.Join(dados.Observacoes, "\n"),
	}
	if atualizando {
		fatura.ID = existente.ID
		if err := s.repo.UpdateFatura(ctx, fatura); err != nil {
			return err
		}
		res.Atualizadas++
	} else {
		fatura, err = s.repo.CreateFatura(ctx, fatura)
		if err != nil {
			return err
		}
		res.Novas++
	}

	for _, linha := range bb.ParseLancamentos(texto, dados.FechadoEm) {
		criado, err := s.repo.CreateLancamento(ctx, core.Lancamento{
			FaturaID:        fatura.ID,
			Data:            linha.Data,
			Descricao:       linha.Descricao,
			Cidade:          linha.Cidade,
			Pais:            linha.Pais,
			Secao:           linha.Secao,
			Valor:           linha.Valor,
			EtiquetaParcela: linha.EtiquetaParcela,
			ParcelaNum:      linha.ParcelaNum,
			ParcelaTotal:    linha.ParcelaTotal,
			HashLinha:       linha.HashLinha,
			HashOrdem:       linha.HashOrdem,
			IsDuplicado:     linha.IsDuplicado,
		})
		if err != nil {
			return err
		}
		if criado {
			res.Lancamentos++
		}
	}

	if dados.TemTotal {
		soma, err := s.repo.SomaLancamentosDaFatura(ctx, fatura.ID)
		if err != nil {
			return err
		}
		diff := soma - core.Cents(dados.Total)
		if diff < 0 {
			diff = -diff
		}
		if diff > 5 {
			aviso := fmt.Sprintf("soma dos lançamentos (%s) diverge do total da fatura (%s)",
				core.FormatBRL(core.FromCents(soma)), core.FormatBRL(dados.Total))
			res.Avisos = append(res.Avisos, aviso)
			slog.WarnContext(ctx, "Divergência entre soma e total da fatura",
				"cartao_final", dados.CartaoFinal,
				"competencia", dados.Competencia.Format("2006-01"),
				"soma_cents", soma,
				"total_cents", core.Cents(dados.Total))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRegrasPendentes(ctx, 0, amqp.OrigemImportPDF); err != nil {
			slog.WarnContext(ctx, "Falha ao publicar evento de regras", "error", err)
		}
	}

	return nil
}
