package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"financas/internal/core"
)

// Ordenações aceitas pelas listagens de transações.
const (
	OrdMaisNovo   = "mais_novo"
	OrdMaisVelho  = "mais_velho"
	OrdMaiorValor = "maior_valor"
	OrdMenorValor = "menor_valor"
)

// TransacaoFilter restringe ListTransacoes. Ano/Mes zerados significam sem
// filtro de período.
type TransacaoFilter struct {
	Ano            int
	Mes            int
	ContaID        int64
	Busca          string
	Ordenacao      string
	IncluirOcultas bool
	Limite         int
}

const transacaoCols = `id, conta_id, fitid, data, descricao, valor_cents, oculta, oculta_manual`

func scanTransacao(row interface{ Scan(...any) error }) (core.Transacao, error) {
	var (
		t     core.Transacao
		dt    string
		cents int64
	)
	err := row.Scan(&t.ID, &t.ContaID, &t.FitID, &dt, &t.Descricao, &cents, &t.Oculta, &t.OcultaManual)
	if err != nil {
		return core.Transacao{}, err
	}
	t.Data = parseData(dt)
	t.Valor = core.FromCents(cents)
	return t, nil
}

func (r *SQLiteRepository) GetTransacaoPorFitID(ctx context.Context, contaID int64, fitid string) (*core.Transacao, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transacaoCols+` FROM transacoes WHERE conta_id = ? AND fitid = ?`,
		contaID, fitid)
	t, err := scanTransacao(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("buscar transação por fitid: %w", err)
	}
	return &t, nil
}

// ExisteTransacaoPorDataValor detecta linhas repetidas que chegaram com FITIDs
// diferentes (reexportações do banco).
func (r *SQLiteRepository) ExisteTransacaoPorDataValor(ctx context.Context, contaID int64, data time.Time, valorCents int64, descricao string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transacoes
		 WHERE conta_id = ? AND data = ? AND valor_cents = ? AND descricao = ?`,
		contaID, fmtData(data), valorCents, descricao).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("verificar transação duplicada: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) CreateTransacao(ctx context.Context, t core.Transacao) (core.Transacao, error) {
	if err := t.Validate(); err != nil {
		return core.Transacao{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transacoes (conta_id, fitid, data, descricao, valor_cents, oculta, oculta_manual)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ContaID, t.FitID, fmtData(t.Data), t.Descricao, core.Cents(t.Valor), t.Oculta, t.OcultaManual)
	if err != nil {
		return core.Transacao{}, fmt.Errorf("criar transação: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return t, nil
}

// UpdateTransacao atualiza os campos vindos do OFX. oculta_manual nunca é
// tocado por reimportação.
func (r *SQLiteRepository) UpdateTransacao(ctx context.Context, t core.Transacao) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transacoes
		 SET data = ?, descricao = ?, valor_cents = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		fmtData(t.Data), t.Descricao, core.Cents(t.Valor), t.ID)
	if err != nil {
		return fmt.Errorf("atualizar transação %d: %w", t.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) SetOculta(ctx context.Context, id int64, oculta bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transacoes SET oculta = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		oculta, id)
	if err != nil {
		return fmt.Errorf("marcar oculta na transação %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransacoesDaConta(ctx context.Context, contaID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transacoes WHERE conta_id = ?`, contaID)
	if err != nil {
		return 0, fmt.Errorf("apagar transações da conta %d: %w", contaID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *SQLiteRepository) ListTransacoes(ctx context.Context, f TransacaoFilter) ([]core.Transacao, error) {
	query := `SELECT ` + transacaoCols + ` FROM transacoes WHERE 1=1`
	var args []any

	if f.Ano != 0 && f.Mes != 0 {
		ini, fim := intervaloMes(f.Ano, f.Mes)
		query += ` AND data >= ? AND data < ?`
		args = append(args, ini, fim)
	}
	if f.ContaID != 0 {
		query += ` AND conta_id = ?`
		args = append(args, f.ContaID)
	}
	if !f.IncluirOcultas {
		query += ` AND oculta = 0`
	}
	if f.Busca != "" {
		query += ` AND descricao LIKE ?`
		args = append(args, "%"+core.NormalizarDescricao(f.Busca)+"%")
	}

	switch f.Ordenacao {
	case OrdMaisVelho:
		query += ` ORDER BY data ASC, id ASC`
	case OrdMaiorValor:
		query += ` ORDER BY valor_cents DESC, data DESC`
	case OrdMenorValor:
		query += ` ORDER BY valor_cents ASC, data DESC`
	default:
		query += ` ORDER BY data DESC, id DESC`
	}
	if f.Limite > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limite)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listar transações: %w", err)
	}
	defer rows.Close()

	var transacoes []core.Transacao
	for rows.Next() {
		t, err := scanTransacao(rows)
		if err != nil {
			return nil, fmt.Errorf("ler transação: %w", err)
		}
		transacoes = append(transacoes, t)
	}
	return transacoes, rows.Err()
}

// ListTransacoesSemMembros devolve transações ainda sem atribuição de membro,
// em lotes paginados por id, para o worker de regras.
func (r *SQLiteRepository) ListTransacoesSemMembros(ctx context.Context, aposID int64, limite int) ([]core.Transacao, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transacaoCols+` FROM transacoes t
		 WHERE t.id > ?
		   AND NOT EXISTS (SELECT 1 FROM transacao_membros tm WHERE tm.transacao_id = t.id)
		 ORDER BY t.id
		 LIMIT ?`, aposID, limite)
	if err != nil {
		return nil, fmt.Errorf("listar transações sem membros: %w", err)
	}
	defer rows.Close()

	var transacoes []core.Transacao
	for rows.Next() {
		t, err := scanTransacao(rows)
		if err != nil {
			return nil, fmt.Errorf("ler transação: %w", err)
		}
		transacoes = append(transacoes, t)
	}
	return transacoes, rows.Err()
}

func (r *SQLiteRepository) GetMembrosTransacao(ctx context.Context, transacaoID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT membro_id FROM transacao_membros WHERE transacao_id = ? ORDER BY membro_id`,
		transacaoID)
	if err != nil {
		return nil, fmt.Errorf("listar membros da transação %d: %w", transacaoID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ler membro da transação: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) SetMembrosTransacao(ctx context.Context, transacaoID int64, membroIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("abrir transação sql: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transacao_membros WHERE transacao_id = ?`, transacaoID); err != nil {
		return fmt.Errorf("limpar membros da transação %d: %w", transacaoID, err)
	}
	for _, membroID := range membroIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transacao_membros (transacao_id, membro_id) VALUES (?, ?)`,
			transacaoID, membroID); err != nil {
			return fmt.Errorf("vincular membro %d à transação %d: %w", membroID, transacaoID, err)
		}
	}
	return tx.Commit()
}

// ResumoMensal agrega o mês para o painel: entradas, saídas e quebra por
// conta (transações visíveis) e por cartão (lançamentos de faturas com
// competência no mês).
func (r *SQLiteRepository) ResumoMensal(ctx context.Context, ano, mes int) (core.ResumoMensal, error) {
	resumo := core.ResumoMensal{Ano: ano, Mes: mes}
	ini, fim := intervaloMes(ano, mes)

	var entradas, saidas sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN valor_cents > 0 THEN valor_cents END), 0),
		   COALESCE(SUM(CASE WHEN valor_cents < 0 THEN valor_cents END), 0),
		   COUNT(1)
		 FROM transacoes
		 WHERE oculta = 0 AND data >= ? AND data < ?`,
		ini, fim).Scan(&entradas, &saidas, &resumo.Contagem)
	if err != nil {
		return resumo, fmt.Errorf("somar transações do mês: %w", err)
	}
	resumo.Entradas = core.FromCents(entradas.Int64)
	resumo.Saidas = core.FromCents(saidas.Int64)
	resumo.Total = resumo.Entradas.Add(resumo.Saidas)

	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, i.nome, c.numero, COALESCE(SUM(t.valor_cents), 0)
		 FROM transacoes t
		 JOIN contas c ON c.id = t.conta_id
		 JOIN instituicoes_financeiras i ON i.id = c.instituicao_id
		 WHERE t.oculta = 0 AND t.data >= ? AND t.data < ?
		 GROUP BY c.id, i.nome, c.numero
		 ORDER BY i.nome, c.numero`,
		ini, fim)
	if err != nil {
		return resumo, fmt.Errorf("agrupar por conta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cv    core.ContaValor
			cents int64
		)
		if err := rows.Scan(&cv.ContaID, &cv.Instituicao, &cv.Numero, &cents); err != nil {
			return resumo, fmt.Errorf("ler agrupamento por conta: %w", err)
		}
		cv.Valor = core.FromCents(cents)
		resumo.PorConta = append(resumo.PorConta, cv)
	}
	if err := rows.Err(); err != nil {
		return resumo, err
	}

	competencia := time.Date(ano, time.Month(mes), 1, 0, 0, 0, 0, time.UTC)
	cartaoRows, err := r.db.QueryContext(ctx,
		`SELECT ca.id, ca.bandeira, ca.cartao_final, COALESCE(SUM(l.valor_cents), 0)
		 FROM lancamentos l
		 JOIN faturas f ON f.id = l.fatura_id
		 JOIN cartoes ca ON ca.id = f.cartao_id
		 WHERE f.competencia = ?
		 GROUP BY ca.id, ca.bandeira, ca.cartao_final
		 ORDER BY ca.bandeira, ca.cartao_final`,
		fmtData(competencia))
	if err != nil {
		return resumo, fmt.Errorf("agrupar por cartão: %w", err)
	}
	defer cartaoRows.Close()
	for cartaoRows.Next() {
		var (
			cv    core.CartaoValor
			cents int64
		)
		if err := cartaoRows.Scan(&cv.CartaoID, &cv.Bandeira, &cv.CartaoFinal, &cents); err != nil {
			return resumo, fmt.Errorf("ler agrupamento por cartão: %w", err)
		}
		cv.Valor = core.FromCents(cents)
		resumo.PorCartao = append(resumo.PorCartao, cv)
	}
	return resumo, cartaoRows.Err()
}
