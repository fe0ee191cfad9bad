package services

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"financas/internal/amqp"
	"financas/internal/core"
	"financas/internal/ofx"
	"financas/internal/storage"
)

// Publisher publica eventos de importação para o worker de regras. A
// implementação real é o cliente AMQP; nil desliga a publicação e as regras
// rodam inline.
type Publisher interface {
	PublishRegrasPendentes(ctx context.Context, contaID int64, origem string) error
}

// ImportOFXOptions controla a importação de extratos.
type ImportOFXOptions struct {
	// DryRun percorre os arquivos e calcula o resultado sem gravar
	// transações nem saldos.
	DryRun bool
	// Reset apaga as transações da conta antes de importar.
	Reset bool
}

// ImportOFXResultado é o resumo impresso ao final da importação.
type ImportOFXResultado struct {
	Arquivos    int
	Processadas int
	Novas       int
	Atualizadas int
	Ignoradas   int
	Saldos      int
}

func (r ImportOFXResultado) String() string {
	return fmt.Sprintf("%d arquivo(s): %d processadas, %d novas, %d atualizadas, %d ignoradas, %d saldos",
		r.Arquivos, r.Processadas, r.Novas, r.Atualizadas, r.Ignoradas, r.Saldos)
}

const parseParalelo = 4

type ImportOFXService struct {
	repo      *storage.SQLiteRepository
	regras    *RegrasService
	publisher Publisher
}

func NewImportOFXService(repo *storage.SQLiteRepository, regras *RegrasService, publisher Publisher) *ImportOFXService {
	return &ImportOFXService{repo: repo, regras: regras, publisher: publisher}
}

// coletarArquivos expande um caminho em arquivos com a extensão dada
// (case-insensitivo), recursivamente quando é diretório.
func coletarArquivos(path, ext string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("acessar %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var arquivos []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ext) {
			arquivos = append(arquivos, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("varrer %s: %w", path, err)
	}
	sort.Strings(arquivos)
	return arquivos, nil
}

type arquivoOFX struct {
	path string
	doc  *ofx.Documento
}

// segmentos de diretório que nunca são nome de membro
var pastasIgnoradas = map[string]bool{
	"conta-corrente": true,
	"ofx":            true,
	"pdf":            true,
	"dados":          true,
	"data":           true,
}

var reAnoPasta = regexp.MustCompile(`^\d{4}$`)

// membroPorPasta procura um membro cujo nome, em forma de slug, apareça em
// algum segmento do caminho do arquivo, do mais específico para o mais geral.
// Pastas de organização ("dados", "ofx") e anos são puladas.
func membroPorPasta(path string, membros []core.Membro) int64 {
	porSlug := make(map[string]int64, len(membros))
	for _, m := range membros {
		if s := core.Slug(m.Nome); s != "" {
			porSlug[s] = m.ID
		}
	}
	if len(porSlug) == 0 {
		return 0
	}

	segs := strings.Split(filepath.ToSlash(filepath.Dir(path)), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		seg := core.Slug(segs[i])
		if seg == "" || pastasIgnoradas[seg] || reAnoPasta.MatchString(seg) {
			continue
		}
		if id, ok := porSlug[seg]; ok {
			return id
		}
	}
	return 0
}

// parseArquivos lê e interpreta os arquivos em paralelo; a gravação no banco
// acontece depois, sequencialmente.
func parseArquivos(ctx context.Context, paths []string) ([]arquivoOFX, error) {
	var (
		mu      sync.Mutex
		parsed  []arquivoOFX
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(parseParalelo)

	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("ler %s: %w", path, err)
			}
			doc, err := ofx.ParseBytes(raw)
			if err != nil {
				return fmt.Errorf("interpretar %s: %w", path, err)
			}
			mu.Lock()
			parsed = append(parsed, arquivoOFX{path: path, doc: doc})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].path < parsed[j].path })
	return parsed, nil
}

// Importar importa os extratos OFX de um arquivo ou diretório para as contas
// da instituição identificada pelo código ("BB", "CX", ...).
func (s *ImportOFXService) Importar(ctx context.Context, codigoInstituicao, path string, opts ImportOFXOptions) (ImportOFXResultado, error) {
	var res ImportOFXResultado

	codigo := strings.ToUpper(strings.TrimSpace(codigoInstituicao))
	if codigo == "" {
		return res, core.ErrCodigoVazio
	}

	paths, err := coletarArquivos(path, ".ofx")
	if err != nil {
		return res, err
	}
	if len(paths) == 0 {
		return res, fmt.Errorf("nenhum arquivo .ofx em %s", path)
	}
	res.Arquivos = len(paths)

	parsed, err := parseArquivos(ctx, paths)
	if err != nil {
		return res, err
	}

	inst, err := s.repo.GetOrCreateInstituicao(ctx, core.InstituicaoFinanceira{
		Nome:   codigo,
		Codigo: codigo,
	})
	if err != nil {
		return res, err
	}

	membros, err := s.repo.ListMembros(ctx)
	if err != nil {
		return res, err
	}

	contasTocadas := map[int64]bool{}
	resetadas := map[int64]bool{}

	for _, arq := range parsed {
		membroID := membroPorPasta(arq.path, membros)
		for _, ext := range arq.doc.Extratos {
			conta, err := s.repo.GetOrCreateConta(ctx, core.Conta{
				InstituicaoID: inst.ID,
				Numero:        ext.Conta,
				Agencia:       ext.Agencia,
				MembroID:      membroID,
			})
			if err != nil {
				return res, err
			}
			// conta já cadastrada sem membro herda o inferido pela pasta
			if membroID != 0 && conta.MembroID == 0 {
				if err := s.repo.SetMembroConta(ctx, conta.ID, membroID); err != nil {
					return res, err
				}
				conta.MembroID = membroID
			}

			if opts.Reset && !opts.DryRun && !resetadas[conta.ID] {
				n, err := s.repo.DeleteTransacoesDaConta(ctx, conta.ID)
				if err != nil {
					return res, err
				}
				resetadas[conta.ID] = true
				slog.InfoContext(ctx, "Transações da conta apagadas antes da importação",
					"conta_id", conta.ID, "apagadas", n)
			}

			for _, tx := range ext.Transacoes {
				res.Processadas++
				novas, atualizadas, err := s.importarTransacao(ctx, conta.ID, tx, opts.DryRun)
				if err != nil {
					return res, fmt.Errorf("%s: %w", arq.path, err)
				}
				res.Novas += novas
				res.Atualizadas += atualizadas
				if novas == 0 && atualizadas == 0 {
					res.Ignoradas++
				}
				if novas > 0 {
					contasTocadas[conta.ID] = true
				}
			}

			if ext.Saldo != nil && !opts.DryRun {
				err := s.repo.UpsertSaldo(ctx, core.Saldo{
					ContaID: conta.ID,
					Data:    ext.Saldo.Data,
					Valor:   ext.Saldo.Valor,
				})
				if err != nil {
					return res, err
				}
				res.Saldos++
			}
		}
	}

	if !opts.DryRun {
		if err := s.dispararRegras(ctx, contasTocadas); err != nil {
			return res, err
		}
	}

	slog.InfoContext(ctx, "Importação OFX concluída",
		"instituicao", codigo,
		"resultado", res.String(),
		"dry_run", opts.DryRun)
	return res, nil
}

// importarTransacao grava uma transação resolvendo colisões de FITID e linhas
// repetidas. Devolve (novas, atualizadas); (0, 0) significa ignorada.
func (s *ImportOFXService) importarTransacao(ctx context.Context, contaID int64, tx ofx.Transacao, dryRun bool) (int, int, error) {
	if !tx.TemData || tx.Data.Year() < 2000 {
		return 0, 0, nil
	}

	descricao := core.NormalizarDescricao(ofx.ComposeDescricao(tx))
	if descricao == "" || strings.Contains(descricao, "saldo anterior") {
		return 0, 0, nil
	}

	cents := core.Cents(tx.Valor)
	fitid := tx.FitID

	existente, err := s.repo.GetTransacaoPorFitID(ctx, contaID, fitid)
	if err != nil {
		return 0, 0, err
	}
	if existente != nil {
		mesmaLinha := existente.Data.Equal(tx.Data) && core.Cents(existente.Valor) == cents
		if mesmaLinha {
			if existente.Descricao == descricao {
				return 0, 0, nil
			}
			if !dryRun {
				existente.Descricao = descricao
				if err := s.repo.UpdateTransacao(ctx, *existente); err != nil {
					return 0, 0, err
				}
			}
			return 0, 1, nil
		}

		// FITID reaproveitado pelo banco para outra transação
		fitid = ofx.FitIDUnico(fitid, tx.Data.Format("20060102"), cents)
		existente, err = s.repo.GetTransacaoPorFitID(ctx, contaID, fitid)
		if err != nil {
			return 0, 0, err
		}
		if existente != nil {
			return 0, 0, nil
		}
	}

	duplicada, err := s.repo.ExisteTransacaoPorDataValor(ctx, contaID, tx.Data, cents, descricao)
	if err != nil {
		return 0, 0, err
	}
	if duplicada {
		return 0, 0, nil
	}

	if !dryRun {
		_, err = s.repo.CreateTransacao(ctx, core.Transacao{
			ContaID:   contaID,
			FitID:     fitid,
			Data:      tx.Data,
			Descricao: descricao,
			Valor:     tx.Valor,
		})
		if err != nil {
			return 0, 0, err
		}
	}
	return 1, 0, nil
}

// dispararRegras publica um evento por conta quando há broker configurado;
// sem broker as regras rodam inline, como no comando manual.
func (s *ImportOFXService) dispararRegras(ctx context.Context, contas map[int64]bool) error {
	if len(contas) == 0 {
		return nil
	}

	if s.publisher != nil {
		for contaID := range contas {
			if err := s.publisher.PublishRegrasPendentes(ctx, contaID, amqp.OrigemImportOFX); err != nil {
				slog.WarnContext(ctx, "Falha ao publicar evento de regras; aplicando inline",
					"conta_id", contaID, "error", err)
				return s.regras.AplicarTudo(ctx, 200)
			}
		}
		return nil
	}

	return s.regras.AplicarTudo(ctx, 200)
}
