package storage

import (
	"context"
	"database/sql"
	"fmt"

	"financas/internal/core"
)

func (r *SQLiteRepository) CreateRegraOcultacao(ctx context.Context, regra core.RegraOcultacao) (core.RegraOcultacao, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO regras_ocultacao (nome, padrao, tipo_padrao, ativo) VALUES (?, ?, ?, ?)`,
		regra.Nome, regra.Padrao, regra.TipoPadrao, regra.Ativo)
	if err != nil {
		return core.RegraOcultacao{}, fmt.Errorf("criar regra de ocultação: %w", err)
	}
	regra.ID, _ = res.LastInsertId()
	return regra, nil
}

func (r *SQLiteRepository) ListRegrasOcultacao(ctx context.Context, somenteAtivas bool) ([]core.RegraOcultacao, error) {
	query := `SELECT id, nome, padrao, tipo_padrao, ativo FROM regras_ocultacao`
	if somenteAtivas {
		query += ` WHERE ativo = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listar regras de ocultação: %w", err)
	}
	defer rows.Close()

	var regras []core.RegraOcultacao
	for rows.Next() {
		var regra core.RegraOcultacao
		if err := rows.Scan(&regra.ID, &regra.Nome, &regra.Padrao, &regra.TipoPadrao, &regra.Ativo); err != nil {
			return nil, fmt.Errorf("ler regra de ocultação: %w", err)
		}
		regras = append(regras, regra)
	}
	return regras, rows.Err()
}

func (r *SQLiteRepository) CreateRegraMembro(ctx context.Context, regra core.RegraMembro) (core.RegraMembro, error) {
	var valor any
	if regra.TemValor {
		valor = core.Cents(regra.Valor)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO regras_membro (nome, padrao, tipo_padrao, tipo_valor, valor_cents, prioridade, ativo)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		regra.Nome, regra.Padrao, regra.TipoPadrao, regra.TipoValor, valor, regra.Prioridade, regra.Ativo)
	if err != nil {
		return core.RegraMembro{}, fmt.Errorf("criar regra de membro: %w", err)
	}
	regra.ID, _ = res.LastInsertId()

	for _, membroID := range regra.MembroIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO regra_membro_membros (regra_id, membro_id) VALUES (?, ?)`,
			regra.ID, membroID); err != nil {
			return core.RegraMembro{}, fmt.Errorf("vincular membro %d à regra %d: %w", membroID, regra.ID, err)
		}
	}
	return regra, nil
}

// ListRegrasMembro devolve as regras ativas em ordem de prioridade, já com os
// membros vinculados carregados.
func (r *SQLiteRepository) ListRegrasMembro(ctx context.Context, somenteAtivas bool) ([]core.RegraMembro, error) {
	query := `SELECT id, nome, padrao, tipo_padrao, tipo_valor, valor_cents, prioridade, ativo
	          FROM regras_membro`
	if somenteAtivas {
		query += ` WHERE ativo = 1`
	}
	query += ` ORDER BY prioridade, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listar regras de membro: %w", err)
	}
	defer rows.Close()

	var regras []core.RegraMembro
	for rows.Next() {
		var (
			regra core.RegraMembro
			valor sql.NullInt64
		)
		err := rows.Scan(&regra.ID, &regra.Nome, &regra.Padrao, &regra.TipoPadrao,
			&regra.TipoValor, &valor, &regra.Prioridade, &regra.Ativo)
		if err != nil {
			return nil, fmt.Errorf("ler regra de membro: %w", err)
		}
		if valor.Valid {
			regra.Valor = core.FromCents(valor.Int64)
			regra.TemValor = true
		}
		regras = append(regras, regra)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range regras {
		membroRows, err := r.db.QueryContext(ctx,
			`SELECT membro_id FROM regra_membro_membros WHERE regra_id = ? ORDER BY membro_id`,
			regras[i].ID)
		if err != nil {
			return nil, fmt.Errorf("listar membros da regra %d: %w", regras[i].ID, err)
		}
		for membroRows.Next() {
			var id int64
			if err := membroRows.Scan(&id); err != nil {
				membroRows.Close()
				return nil, fmt.Errorf("ler membro da regra: %w", err)
			}
			regras[i].MembroIDs = append(regras[i].MembroIDs, id)
		}
		if err := membroRows.Err(); err != nil {
			membroRows.Close()
			return nil, err
		}
		membroRows.Close()
	}
	return regras, nil
}
