// Package storage implementa a persistência em SQLite.
//
// Valores monetários são gravados como centavos inteiros e datas como texto
// ISO (YYYY-MM-DD), o que mantém as comparações de período em SQL simples.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"financas/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("criar diretório do banco: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("abrir banco sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping no banco: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("habilitar foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrar banco: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifica a conexão; alimenta o /readyz do servidor.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const dataISO = "2006-01-02"

func fmtData(t time.Time) string {
	return t.UTC().Format(dataISO)
}

func parseData(s string) time.Time {
	t, err := time.ParseInLocation(dataISO, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// intervaloMes devolve [primeiro dia do mês, primeiro dia do mês seguinte)
// no formato de data do banco.
func intervaloMes(ano, mes int) (string, string) {
	ini := time.Date(ano, time.Month(mes), 1, 0, 0, 0, 0, time.UTC)
	return ini.Format(dataISO), ini.AddDate(0, 1, 0).Format(dataISO)
}

// --- Instituições ---

func (r *SQLiteRepository) GetInstituicaoPorCodigo(ctx context.Context, codigo string) (*core.InstituicaoFinanceira, error) {
	var i core.InstituicaoFinanceira
	err := r.db.QueryRowContext(ctx,
		`SELECT id, nome, codigo, tipo FROM instituicoes_financeiras WHERE codigo = ?`, codigo).
		Scan(&i.ID, &i.Nome, &i.Codigo, &i.Tipo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("buscar instituição %s: %w", codigo, err)
	}
	return &i, nil
}

func (r *SQLiteRepository) GetOrCreateInstituicao(ctx context.Context, inst core.InstituicaoFinanceira) (core.InstituicaoFinanceira, error) {
	if err := inst.Validate(); err != nil {
		return core.InstituicaoFinanceira{}, err
	}
	existente, err := r.GetInstituicaoPorCodigo(ctx, inst.Codigo)
	if err != nil {
		return core.InstituicaoFinanceira{}, err
	}
	if existente != nil {
		return *existente, nil
	}

	if inst.Tipo == "" {
		inst.Tipo = core.InstituicaoBanco
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO instituicoes_financeiras (nome, codigo, tipo) VALUES (?, ?, ?)`,
		inst.Nome, inst.Codigo, inst.Tipo)
	if err != nil {
		return core.InstituicaoFinanceira{}, fmt.Errorf("criar instituição %s: %w", inst.Codigo, err)
	}
	inst.ID, _ = res.LastInsertId()
	return inst, nil
}

// --- Membros ---

func (r *SQLiteRepository) ListMembros(ctx context.Context) ([]core.Membro, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, nome FROM membros ORDER BY nome`)
	if err != nil {
		return nil, fmt.Errorf("listar membros: %w", err)
	}
	defer rows.Close()

	var membros []core.Membro
	for rows.Next() {
		var m core.Membro
		if err := rows.Scan(&m.ID, &m.Nome); err != nil {
			return nil, fmt.Errorf("ler membro: %w", err)
		}
		membros = append(membros, m)
	}
	return membros, rows.Err()
}

func (r *SQLiteRepository) GetOrCreateMembro(ctx context.Context, nome string) (core.Membro, error) {
	var m core.Membro
	err := r.db.QueryRowContext(ctx, `SELECT id, nome FROM membros WHERE nome = ?`, nome).
		Scan(&m.ID, &m.Nome)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Membro{}, fmt.Errorf("buscar membro %s: %w", nome, err)
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO membros (nome) VALUES (?)`, nome)
	if err != nil {
		return core.Membro{}, fmt.Errorf("criar membro %s: %w", nome, err)
	}
	m.ID, _ = res.LastInsertId()
	m.Nome = nome
	return m, nil
}

// --- Contas ---

func scanConta(row interface{ Scan(...any) error }) (core.Conta, error) {
	var (
		c      core.Conta
		membro sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.InstituicaoID, &c.Titular, &c.Numero, &c.Agencia, &c.Tipo, &membro)
	if err != nil {
		return core.Conta{}, err
	}
	c.MembroID = membro.Int64
	return c, nil
}

const contaCols = `id, instituicao_id, titular, numero, agencia, tipo, membro_id`

func (r *SQLiteRepository) GetOrCreateConta(ctx context.Context, conta core.Conta) (core.Conta, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+contaCols+` FROM contas WHERE instituicao_id = ? AND numero = ?`,
		conta.InstituicaoID, conta.Numero)
	existente, err := scanConta(row)
	if err == nil {
		return existente, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Conta{}, fmt.Errorf("buscar conta %s: %w", conta.Numero, err)
	}

	if conta.Tipo == "" {
		conta.Tipo = core.ContaCorrente
	}
	var membro any
	if conta.MembroID != 0 {
		membro = conta.MembroID
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO contas (instituicao_id, titular, numero, agencia, tipo, membro_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conta.InstituicaoID, conta.Titular, conta.Numero, conta.Agencia, conta.Tipo, membro)
	if err != nil {
		return core.Conta{}, fmt.Errorf("criar conta %s: %w", conta.Numero, err)
	}
	conta.ID, _ = res.LastInsertId()
	return conta, nil
}

// SetMembroConta preenche o membro de uma conta que ainda não tem um; uma
// atribuição existente nunca é sobrescrita.
func (r *SQLiteRepository) SetMembroConta(ctx context.Context, contaID, membroID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE contas SET membro_id = ? WHERE id = ? AND membro_id IS NULL`,
		membroID, contaID)
	if err != nil {
		return fmt.Errorf("atribuir membro à conta %d: %w", contaID, err)
	}
	return nil
}

// FindContasPorNumero localiza contas pelo número, opcionalmente restringindo
// pela agência. Usada pela importação de saldos, onde o OFX nem sempre traz a
// agência.
func (r *SQLiteRepository) FindContasPorNumero(ctx context.Context, numero, agencia string) ([]core.Conta, error) {
	query := `SELECT ` + contaCols + ` FROM contas WHERE numero = ?`
	args := []any{numero}
	if agencia != "" {
		query += ` AND agencia = ?`
		args = append(args, agencia)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("buscar contas por número %s: %w", numero, err)
	}
	defer rows.Close()

	var contas []core.Conta
	for rows.Next() {
		c, err := scanConta(rows)
		if err != nil {
			return nil, fmt.Errorf("ler conta: %w", err)
		}
		contas = append(contas, c)
	}
	return contas, rows.Err()
}

func (r *SQLiteRepository) ListContas(ctx context.Context) ([]core.Conta, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contaCols+` FROM contas ORDER BY instituicao_id, numero`)
	if err != nil {
		return nil, fmt.Errorf("listar contas: %w", err)
	}
	defer rows.Close()

	var contas []core.Conta
	for rows.Next() {
		c, err := scanConta(rows)
		if err != nil {
			return nil, fmt.Errorf("ler conta: %w", err)
		}
		contas = append(contas, c)
	}
	return contas, rows.Err()
}

// --- Saldos ---

func (r *SQLiteRepository) UpsertSaldo(ctx context.Context, s core.Saldo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saldos (conta_id, data, valor_cents)
		 VALUES (?, ?, ?)
		 ON CONFLICT (conta_id, data)
		 DO UPDATE SET valor_cents = excluded.valor_cents, updated_at = CURRENT_TIMESTAMP`,
		s.ContaID, fmtData(s.Data), core.Cents(s.Valor))
	if err != nil {
		return fmt.Errorf("gravar saldo da conta %d em %s: %w", s.ContaID, fmtData(s.Data), err)
	}
	return nil
}

func (r *SQLiteRepository) GetSaldo(ctx context.Context, contaID int64, data time.Time) (*core.Saldo, error) {
	var (
		s     core.Saldo
		dt    string
		cents int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, conta_id, data, valor_cents FROM saldos WHERE conta_id = ? AND data = ?`,
		contaID, fmtData(data)).
		Scan(&s.ID, &s.ContaID, &dt, &cents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("buscar saldo: %w", err)
	}
	s.Data = parseData(dt)
	s.Valor = core.FromCents(cents)
	return &s, nil
}
