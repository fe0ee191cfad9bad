package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"financas/internal/core"
	"financas/internal/ofx"
	"financas/internal/storage"
)

// ImportSaldosOptions controla a importação de saldos.
type ImportSaldosOptions struct {
	DryRun bool
	// AgenciaPrioritaria desempata quando o OFX não traz agência e o número
	// da conta existe em mais de uma.
	AgenciaPrioritaria string
}

// ImportSaldosResultado resume a importação de saldos.
type ImportSaldosResultado struct {
	Arquivos int
	Saldos   int
	Avisos   []string
}

func (r ImportSaldosResultado) String() string {
	return fmt.Sprintf("%d arquivo(s): %d saldos gravados, %d avisos",
		r.Arquivos, r.Saldos, len(r.Avisos))
}

// ImportSaldosService grava apenas o saldo contábil (LEDGERBAL) dos OFX, sem
// tocar nas transações. Serve para arquivos de "posição" que alguns bancos
// exportam sem movimento.
type ImportSaldosService struct {
	repo *storage.SQLiteRepository
}

func NewImportSaldosService(repo *storage.SQLiteRepository) *ImportSaldosService {
	return &ImportSaldosService{repo: repo}
}

// Importar processa um arquivo ou diretório. Contas são apenas resolvidas,
// nunca criadas: saldo de conta desconhecida vira aviso.
func (s *ImportSaldosService) Importar(ctx context.Context, path string, opts ImportSaldosOptions) (ImportSaldosResultado, error) {
	var res ImportSaldosResultado

	paths, err := coletarArquivos(path, ".ofx")
	if err != nil {
		return res, err
	}
	if len(paths) == 0 {
		return res, fmt.Errorf("nenhum arquivo .ofx em %s", path)
	}
	res.Arquivos = len(paths)

	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return res, fmt.Errorf("ler %s: %w", p, err)
		}
		doc, err := ofx.ParseBytes(raw)
		if err != nil {
			res.Avisos = append(res.Avisos, fmt.Sprintf("%s: %v", p, err))
			continue
		}

		for _, ext := range doc.Extratos {
			if ext.Saldo == nil {
				res.Avisos = append(res.Avisos, fmt.Sprintf("%s: conta %s sem LEDGERBAL", p, ext.Conta))
				continue
			}

			conta, aviso, err := s.resolverConta(ctx, ext.Conta, ext.Agencia, opts.AgenciaPrioritaria)
			if err != nil {
				return res, err
			}
			if aviso != "" {
				res.Avisos = append(res.Avisos, fmt.Sprintf("%s: %s", p, aviso))
			}
			if conta == nil {
				continue
			}

			if !opts.DryRun {
				err := s.repo.UpsertSaldo(ctx, core.Saldo{
					ContaID: conta.ID,
					Data:    ext.Saldo.Data,
					Valor:   ext.Saldo.Valor,
				})
				if err != nil {
					return res, err
				}
			}
			res.Saldos++
		}
	}

	slog.InfoContext(ctx, "Importação de saldos concluída",
		"resultado", res.String(),
		"dry_run", opts.DryRun)
	return res, nil
}

// resolverConta localiza a conta do saldo. Ambiguidade não resolve sozinha:
// melhor um aviso do que um saldo gravado na conta errada. Conta resolvida com
// aviso não vazio significa que o saldo é gravado mesmo assim.
func (s *ImportSaldosService) resolverConta(ctx context.Context, numero, agencia, agenciaPrioritaria string) (*core.Conta, string, error) {
	contas, err := s.repo.FindContasPorNumero(ctx, numero, agencia)
	if err != nil {
		return nil, "", err
	}

	if len(contas) > 1 && agencia == "" && agenciaPrioritaria != "" {
		contas, err = s.repo.FindContasPorNumero(ctx, numero, agenciaPrioritaria)
		if err != nil {
			return nil, "", err
		}
	}

	// a agência do OFX nem sempre bate com a cadastrada; quando o número
	// sozinho identifica uma única conta, o saldo entra nela
	if len(contas) == 0 && agencia != "" {
		soNumero, err := s.repo.FindContasPorNumero(ctx, numero, "")
		if err != nil {
			return nil, "", err
		}
		if len(soNumero) == 1 {
			return &soNumero[0], fmt.Sprintf("conta %s encontrada apenas pelo número; agência %q do arquivo ignorada", numero, agencia), nil
		}
	}

	switch len(contas) {
	case 0:
		return nil, fmt.Sprintf("conta %s (agência %q) não cadastrada; saldo ignorado", numero, agencia), nil
	case 1:
		return &contas[0], "", nil
	default:
		return nil, fmt.Sprintf("conta %s ambígua (%d candidatas); use --agencia-prioritaria", numero, len(contas)), nil
	}
}
