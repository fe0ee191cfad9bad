package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"financas/internal/core"
)

// --- Cartões ---

const cartaoCols = `id, instituicao_id, bandeira, cartao_final, titular, membro_id, ativo`

func scanCartao(row interface{ Scan(...any) error }) (core.Cartao, error) {
	var (
		c      core.Cartao
		membro sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.InstituicaoID, &c.Bandeira, &c.CartaoFinal, &c.Titular, &membro, &c.Ativo)
	if err != nil {
		return core.Cartao{}, err
	}
	c.MembroID = membro.Int64
	return c, nil
}

func (r *SQLiteRepository) GetOrCreateCartao(ctx context.Context, cartao core.Cartao) (core.Cartao, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+cartaoCols+` FROM cartoes
		 WHERE instituicao_id = ? AND bandeira = ? AND cartao_final = ?`,
		cartao.InstituicaoID, cartao.Bandeira, cartao.CartaoFinal)
	existente, err := scanCartao(row)
	if err == nil {
		return existente, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Cartao{}, fmt.Errorf("buscar cartão final %s: %w", cartao.CartaoFinal, err)
	}

	var membro any
	if cartao.MembroID != 0 {
		membro = cartao.MembroID
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO cartoes (instituicao_id, bandeira, cartao_final, titular, membro_id, ativo)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		cartao.InstituicaoID, cartao.Bandeira, cartao.CartaoFinal, cartao.Titular, membro)
	if err != nil {
		return core.Cartao{}, fmt.Errorf("criar cartão final %s: %w", cartao.CartaoFinal, err)
	}
	cartao.ID, _ = res.LastInsertId()
	cartao.Ativo = true
	return cartao, nil
}

func (r *SQLiteRepository) ListCartoes(ctx context.Context) ([]core.Cartao, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cartaoCols+` FROM cartoes ORDER BY bandeira, cartao_final`)
	if err != nil {
		return nil, fmt.Errorf("listar cartões: %w", err)
	}
	defer rows.Close()

	var cartoes []core.Cartao
	for rows.Next() {
		c, err := scanCartao(rows)
		if err != nil {
			return nil, fmt.Errorf("ler cartão: %w", err)
		}
		cartoes = append(cartoes, c)
	}
	return cartoes, rows.Err()
}

// --- Faturas ---

const faturaCols = `id, cartao_id, competencia, fechado_em, vencimento_em, total_cents,
	arquivo_hash, fonte_arquivo, observacoes`

func scanFatura(row interface{ Scan(...any) error }) (core.Fatura, error) {
	var (
		f               core.Fatura
		comp, fech, ven string
		total           sql.NullInt64
	)
	err := row.Scan(&f.ID, &f.CartaoID, &comp, &fech, &ven, &total,
		&f.ArquivoHash, &f.FonteArquivo, &f.Observacoes)
	if err != nil {
		return core.Fatura{}, err
	}
	f.Competencia = parseData(comp)
	f.FechadoEm = parseData(fech)
	f.VencimentoEm = parseData(ven)
	if total.Valid {
		f.Total = core.FromCents(total.Int64)
		f.TemTotal = true
	}
	return f, nil
}

func (r *SQLiteRepository) GetFaturaPorCompetencia(ctx context.Context, cartaoID int64, competencia time.Time) (*core.Fatura, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+faturaCols+` FROM faturas WHERE cartao_id = ? AND competencia = ?`,
		cartaoID, fmtData(competencia))
	f, err := scanFatura(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("buscar fatura por competência: %w", err)
	}
	return &f, nil
}

func (r *SQLiteRepository) CreateFatura(ctx context.Context, f core.Fatura) (core.Fatura, error) {
	var total any
	if f.TemTotal {
		total = core.Cents(f.Total)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO faturas (cartao_id, competencia, fechado_em, vencimento_em, total_cents,
		   arquivo_hash, fonte_arquivo, observacoes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.CartaoID, fmtData(f.Competencia), fmtData(f.FechadoEm), fmtData(f.VencimentoEm),
		total, f.ArquivoHash, f.FonteArquivo, f.Observacoes)
	if err != nil {
		return core.Fatura{}, fmt.Errorf("criar fatura: %w", err)
	}
	f.ID, _ = res.LastInsertId()
	return f, nil
}

func (r *SQLiteRepository) UpdateFatura(ctx context.Context, f core.Fatura) error {
	var total any
	if f.TemTotal {
		total = core.Cents(f.Total)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE faturas
		 SET fechado_em = ?, vencimento_em = ?, total_cents = ?, arquivo_hash = ?,
		     fonte_arquivo = ?, observacoes = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		fmtData(f.FechadoEm), fmtData(f.VencimentoEm), total, f.ArquivoHash,
		f.FonteArquivo, f.Observacoes, f.ID)
	if err != nil {
		return fmt.Errorf("atualizar fatura %d: %w", f.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteFatura(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lancamentos WHERE fatura_id = ?`, id); err != nil {
		return fmt.Errorf("apagar lançamentos da fatura %d: %w", id, err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM faturas WHERE id = ?`, id); err != nil {
		return fmt.Errorf("apagar fatura %d: %w", id, err)
	}
	return nil
}

// FaturaComCartao junta o cabeçalho da fatura aos dados do cartão para as
// listagens.
type FaturaComCartao struct {
	core.Fatura
	Bandeira    string
	CartaoFinal string
	Lancamentos int
	SomaCents   int64
}

func (r *SQLiteRepository) ListFaturas(ctx context.Context) ([]FaturaComCartao, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.cartao_id, f.competencia, f.fechado_em, f.vencimento_em, f.total_cents,
		        f.arquivo_hash, f.fonte_arquivo, f.observacoes,
		        ca.bandeira, ca.cartao_final,
		        COUNT(l.id), COALESCE(SUM(l.valor_cents), 0)
		 FROM faturas f
		 JOIN cartoes ca ON ca.id = f.cartao_id
		 LEFT JOIN lancamentos l ON l.fatura_id = f.id
		 GROUP BY f.id
		 ORDER BY f.competencia DESC, ca.cartao_final`)
	if err != nil {
		return nil, fmt.Errorf("listar faturas: %w", err)
	}
	defer rows.Close()

	var faturas []FaturaComCartao
	for rows.Next() {
		var (
			fc              FaturaComCartao
			comp, fech, ven string
			total           sql.NullInt64
		)
		err := rows.Scan(&fc.ID, &fc.CartaoID, &comp, &fech, &ven, &total,
			&fc.ArquivoHash, &fc.FonteArquivo, &fc.Observacoes,
			&fc.Bandeira, &fc.CartaoFinal, &fc.Lancamentos, &fc.SomaCents)
		if err != nil {
			return nil, fmt.Errorf("ler fatura: %w", err)
		}
		fc.Competencia = parseData(comp)
		fc.FechadoEm = parseData(fech)
		fc.VencimentoEm = parseData(ven)
		if total.Valid {
			fc.Total = core.FromCents(total.Int64)
			fc.TemTotal = true
		}
		faturas = append(faturas, fc)
	}
	return faturas, rows.Err()
}

// --- Lançamentos ---

// CreateLancamento insere uma linha de fatura. Linhas que colidem em
// (fatura, hash_linha, hash_ordem) são ignoradas; o retorno informa se a
// linha foi de fato criada.
func (r *SQLiteRepository) CreateLancamento(ctx context.Context, l core.Lancamento) (bool, error) {
	if err := l.Validate(); err != nil {
		return false, err
	}

	var valorMoeda, taxa any
	if l.TemValorMoeda {
		valorMoeda = core.Cents(l.ValorMoeda)
	}
	if l.TemTaxaCambio {
		taxa = l.TaxaCambio.String()
	}
	moeda := l.Moeda
	if moeda == "" {
		moeda = "BRL"
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO lancamentos (fatura_id, data, descricao, cidade, pais, secao, valor_cents,
		   moeda, valor_moeda_cents, taxa_cambio, etiqueta_parcela, parcela_num, parcela_total,
		   observacoes, hash_linha, hash_ordem, is_duplicado, fitid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (fatura_id, hash_linha, hash_ordem) DO NOTHING`,
		l.FaturaID, fmtData(l.Data), l.Descricao, l.Cidade, l.Pais, l.Secao, core.Cents(l.Valor),
		moeda, valorMoeda, taxa, l.EtiquetaParcela, l.ParcelaNum, l.ParcelaTotal,
		l.Observacoes, l.HashLinha, l.HashOrdem, l.IsDuplicado, l.FitID)
	if err != nil {
		return false, fmt.Errorf("criar lançamento: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SQLiteRepository) DeleteLancamentosDaFatura(ctx context.Context, faturaID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lancamentos WHERE fatura_id = ?`, faturaID)
	if err != nil {
		return 0, fmt.Errorf("apagar lançamentos da fatura %d: %w", faturaID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SomaLancamentosDaFatura confere a soma das linhas contra o total impresso.
func (r *SQLiteRepository) SomaLancamentosDaFatura(ctx context.Context, faturaID int64) (int64, error) {
	var cents sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(valor_cents), 0) FROM lancamentos WHERE fatura_id = ?`,
		faturaID).Scan(&cents)
	if err != nil {
		return 0, fmt.Errorf("somar lançamentos da fatura %d: %w", faturaID, err)
	}
	return cents.Int64, nil
}

const lancamentoCols = `id, fatura_id, data, descricao, cidade, pais, secao, valor_cents,
	moeda, valor_moeda_cents, taxa_cambio, etiqueta_parcela, parcela_num, parcela_total,
	observacoes, hash_linha, hash_ordem, is_duplicado, fitid`

func scanLancamento(row interface{ Scan(...any) error }) (core.Lancamento, error) {
	var (
		l          core.Lancamento
		dt         string
		cents      int64
		valorMoeda sql.NullInt64
		taxaCambio sql.NullString
	)
	err := row.Scan(&l.ID, &l.FaturaID, &dt, &l.Descricao, &l.Cidade, &l.Pais, &l.Secao,
		&cents, &l.Moeda, &valorMoeda, &taxaCambio,
		&l.EtiquetaParcela, &l.ParcelaNum, &l.ParcelaTotal, &l.Observacoes,
		&l.HashLinha, &l.HashOrdem, &l.IsDuplicado, &l.FitID)
	if err != nil {
		return core.Lancamento{}, err
	}
	l.Data = parseData(dt)
	l.Valor = core.FromCents(cents)
	if valorMoeda.Valid {
		l.ValorMoeda = core.FromCents(valorMoeda.Int64)
		l.TemValorMoeda = true
	}
	if taxaCambio.Valid {
		if taxa, err := core.ParseDecimalBR(taxaCambio.String); err == nil {
			l.TaxaCambio = taxa
			l.TemTaxaCambio = true
		}
	}
	return l, nil
}

// ListLancamentosSemMembros devolve lançamentos ainda sem atribuição de
// membro, em lotes paginados por id, como a variante de transações.
func (r *SQLiteRepository) ListLancamentosSemMembros(ctx context.Context, aposID int64, limite int) ([]core.Lancamento, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+lancamentoCols+` FROM lancamentos
		 WHERE id > ?
		   AND NOT EXISTS (SELECT 1 FROM lancamento_membros lm WHERE lm.lancamento_id = lancamentos.id)
		 ORDER BY id
		 LIMIT ?`, aposID, limite)
	if err != nil {
		return nil, fmt.Errorf("listar lançamentos sem membros: %w", err)
	}
	defer rows.Close()

	var lancamentos []core.Lancamento
	for rows.Next() {
		l, err := scanLancamento(rows)
		if err != nil {
			return nil, fmt.Errorf("ler lançamento: %w", err)
		}
		lancamentos = append(lancamentos, l)
	}
	return lancamentos, rows.Err()
}

func (r *SQLiteRepository) GetMembrosLancamento(ctx context.Context, lancamentoID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT membro_id FROM lancamento_membros WHERE lancamento_id = ? ORDER BY membro_id`,
		lancamentoID)
	if err != nil {
		return nil, fmt.Errorf("listar membros do lançamento %d: %w", lancamentoID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ler membro do lançamento: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) SetMembrosLancamento(ctx context.Context, lancamentoID int64, membroIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("abrir transação sql: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM lancamento_membros WHERE lancamento_id = ?`, lancamentoID); err != nil {
		return fmt.Errorf("limpar membros do lançamento %d: %w", lancamentoID, err)
	}
	for _, membroID := range membroIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lancamento_membros (lancamento_id, membro_id) VALUES (?, ?)`,
			lancamentoID, membroID); err != nil {
			return fmt.Errorf("vincular membro %d ao lançamento %d: %w", membroID, lancamentoID, err)
		}
	}
	return tx.Commit()
}

// LancamentoFilter restringe ListLancamentos.
type LancamentoFilter struct {
	Ano      int
	Mes      int
	CartaoID int64
}

// LancamentoComFatura é a linha das listagens de cartão: o lançamento mais a
// identificação da fatura a que pertence.
type LancamentoComFatura struct {
	core.Lancamento
	Competencia time.Time
	Bandeira    string
	CartaoFinal string
}

// FaturaLabel identifica a fatura na coluna correspondente da listagem.
func (l LancamentoComFatura) FaturaLabel() string {
	var b strings.Builder
	if l.Bandeira != "" {
		b.WriteString(l.Bandeira)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "final %s — %s", l.CartaoFinal, l.Competencia.Format("01/2006"))
	return b.String()
}

func (r *SQLiteRepository) ListLancamentos(ctx context.Context, f LancamentoFilter) ([]LancamentoComFatura, error) {
	query := `SELECT l.id, l.fatura_id, l.data, l.descricao, l.cidade, l.pais, l.secao,
	            l.valor_cents, l.moeda, l.valor_moeda_cents, l.taxa_cambio,
	            l.etiqueta_parcela, l.parcela_num, l.parcela_total, l.observacoes,
	            l.hash_linha, l.hash_ordem, l.is_duplicado, l.fitid,
	            f.competencia, ca.bandeira, ca.cartao_final
	          FROM lancamentos l
	          JOIN faturas f ON f.id = l.fatura_id
	          JOIN cartoes ca ON ca.id = f.cartao_id
	          WHERE 1=1`
	var args []any

	if f.Ano != 0 && f.Mes != 0 {
		ini, fim := intervaloMes(f.Ano, f.Mes)
		query += ` AND l.data >= ? AND l.data < ?`
		args = append(args, ini, fim)
	}
	if f.CartaoID != 0 {
		query += ` AND f.cartao_id = ?`
		args = append(args, f.CartaoID)
	}
	query += ` ORDER BY l.data DESC, l.id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listar lançamentos: %w", err)
	}
	defer rows.Close()

	var lancamentos []LancamentoComFatura
	for rows.Next() {
		var (
			lc         LancamentoComFatura
			dt, comp   string
			cents      int64
			valorMoeda sql.NullInt64
			taxaCambio sql.NullString
		)
		err := rows.Scan(&lc.ID, &lc.FaturaID, &dt, &lc.Descricao, &lc.Cidade, &lc.Pais, &lc.Secao,
			&cents, &lc.Moeda, &valorMoeda, &taxaCambio,
			&lc.EtiquetaParcela, &lc.ParcelaNum, &lc.ParcelaTotal, &lc.Observacoes,
			&lc.HashLinha, &lc.HashOrdem, &lc.IsDuplicado, &lc.FitID,
			&comp, &lc.Bandeira, &lc.CartaoFinal)
		if err != nil {
			return nil, fmt.Errorf("ler lançamento: %w", err)
		}
		lc.Data = parseData(dt)
		lc.Valor = core.FromCents(cents)
		lc.Competencia = parseData(comp)
		if valorMoeda.Valid {
			lc.ValorMoeda = core.FromCents(valorMoeda.Int64)
			lc.TemValorMoeda = true
		}
		if taxaCambio.Valid {
			if taxa, err := core.ParseDecimalBR(taxaCambio.String); err == nil {
				lc.TaxaCambio = taxa
				lc.TemTaxaCambio = true
			}
		}
		lancamentos = append(lancamentos, lc)
	}
	return lancamentos, rows.Err()
}
