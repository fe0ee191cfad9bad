package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Tipos de conta corrente.
const (
	ContaCorrente     TipoConta = "corrente"
	ContaPoupanca     TipoConta = "poupanca"
	ContaInvestimento TipoConta = "investimento"
)

// Tipos de instituição financeira.
const (
	InstituicaoBanco       TipoInstituicao = "banco"
	InstituicaoCorretora   TipoInstituicao = "corretora"
	InstituicaoFintech     TipoInstituicao = "fintech"
	InstituicaoCooperativa TipoInstituicao = "cooperativa"
	InstituicaoOutro       TipoInstituicao = "outro"
)

type (
	TipoConta       string
	TipoInstituicao string

	// InstituicaoFinanceira identifica um banco pelo código curto ("BB", "CX").
	InstituicaoFinanceira struct {
		ID     int64
		Nome   string
		Codigo string
		Tipo   TipoInstituicao
	}

	// Membro é uma pessoa da casa à qual gastos podem ser atribuídos.
	Membro struct {
		ID   int64
		Nome string
	}

	// Conta é uma conta corrente/poupança de uma instituição.
	Conta struct {
		ID            int64
		InstituicaoID int64
		Titular       string
		Numero        string
		Agencia       string
		Tipo          TipoConta
		MembroID      int64 // 0 = sem membro
	}

	// Transacao é um movimento de conta corrente importado de OFX.
	Transacao struct {
		ID           int64
		ContaID      int64
		FitID        string
		Data         time.Time
		Descricao    string
		Valor        decimal.Decimal
		Oculta       bool
		OcultaManual bool
		MembroIDs    []int64
	}

	// Saldo é o saldo contábil (LEDGERBAL) de uma conta em um dia.
	Saldo struct {
		ID      int64
		ContaID int64
		Data    time.Time
		Valor   decimal.Decimal
	}

	// Cartao é um cartão de crédito identificado pelos 4 dígitos finais.
	Cartao struct {
		ID            int64
		InstituicaoID int64
		Bandeira      string
		CartaoFinal   string
		Titular       string
		MembroID      int64
		Ativo         bool
	}

	// Fatura é o cabeçalho de uma fatura mensal de cartão.
	Fatura struct {
		ID           int64
		CartaoID     int64
		Competencia  time.Time // sempre dia 1º do mês de fechamento
		FechadoEm    time.Time
		VencimentoEm time.Time
		Total        decimal.Decimal
		TemTotal     bool
		ArquivoHash  string
		FonteArquivo string
		Observacoes  string
		CriadoEm     time.Time
		AtualizadoEm time.Time
	}

	// Lancamento é uma linha de fatura de cartão.
	Lancamento struct {
		ID              int64
		FaturaID        int64
		Data            time.Time
		Descricao       string
		Cidade          string
		Pais            string
		Secao           string
		Valor           decimal.Decimal
		Moeda           string
		ValorMoeda      decimal.Decimal
		TemValorMoeda   bool
		TaxaCambio      decimal.Decimal
		TemTaxaCambio   bool
		EtiquetaParcela string
		ParcelaNum      int
		ParcelaTotal    int
		Observacoes     string
		HashLinha       string
		HashOrdem       int
		IsDuplicado     bool
		FitID           string
		MembroIDs       []int64
	}
)

var (
	ErrValorInvalido     = errors.New("valor inválido")
	ErrDataInvalida      = errors.New("data inválida")
	ErrDescricaoVazia    = errors.New("descrição vazia")
	ErrCodigoVazio       = errors.New("código da instituição vazio")
	ErrContaNaoResolvida = errors.New("conta não resolvida")
)

// Competencia devolve o primeiro dia do mês da data de fechamento.
func Competencia(fechadoEm time.Time) time.Time {
	return time.Date(fechadoEm.Year(), fechadoEm.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (t Transacao) Validate() error {
	if t.Data.IsZero() || t.Data.Year() < 2000 {
		return ErrDataInvalida
	}
	if strings.TrimSpace(t.Descricao) == "" {
		return ErrDescricaoVazia
	}
	if utf8.RuneCountInString(t.Descricao) > 255 {
		return errors.New("descrição muito longa (máx. 255 caracteres)")
	}
	return nil
}

func (l Lancamento) Validate() error {
	if l.Data.IsZero() {
		return ErrDataInvalida
	}
	if strings.TrimSpace(l.Descricao) == "" {
		return ErrDescricaoVazia
	}
	if l.ParcelaNum < 0 || l.ParcelaTotal < 0 || l.ParcelaNum > l.ParcelaTotal {
		return errors.New("parcela inconsistente")
	}
	return nil
}

func (i InstituicaoFinanceira) Validate() error {
	if strings.TrimSpace(i.Codigo) == "" {
		return ErrCodigoVazio
	}
	if strings.TrimSpace(i.Nome) == "" {
		return errors.New("nome da instituição vazio")
	}
	return nil
}
