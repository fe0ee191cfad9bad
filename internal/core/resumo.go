package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Nomes dos meses em pt-BR, sem depender de locale do sistema.
var mesesPT = [...]string{
	"", "janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// ResumoMensal agrega as transações visíveis de um mês.
type ResumoMensal struct {
	Ano       int
	Mes       int
	Entradas  decimal.Decimal
	Saidas    decimal.Decimal
	Total     decimal.Decimal
	Contagem  int
	PorConta  []ContaValor
	PorCartao []CartaoValor
}

// ContaValor é uma linha do resumo agrupada por conta.
type ContaValor struct {
	ContaID     int64
	Instituicao string
	Numero      string
	Valor       decimal.Decimal
}

// CartaoValor é uma linha do resumo agrupada por cartão.
type CartaoValor struct {
	CartaoID    int64
	Bandeira    string
	CartaoFinal string
	Valor       decimal.Decimal
}

// MesReferencia identifica um mês de competência nos filtros das views.
type MesReferencia struct {
	Ano int
	Mes int
}

func (m MesReferencia) Valida() bool {
	return m.Ano >= 2000 && m.Mes >= 1 && m.Mes <= 12
}

// Label devolve o rótulo de exibição, ex.: "Agosto/2026".
func (m MesReferencia) Label() string {
	if !m.Valida() {
		return ""
	}
	nome := mesesPT[m.Mes]
	return fmt.Sprintf("%s%s/%d", strings.ToUpper(nome[:1]), nome[1:], m.Ano)
}

// UltimosMeses lista os últimos n meses a partir de hoje, mais novo primeiro.
// Alimenta o seletor de período das listagens.
func UltimosMeses(agora time.Time, n int) []MesReferencia {
	base := time.Date(agora.Year(), agora.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]MesReferencia, 0, n)
	for i := 0; i < n; i++ {
		d := base.AddDate(0, -i, 0)
		out = append(out, MesReferencia{Ano: d.Year(), Mes: int(d.Month())})
	}
	return out
}
