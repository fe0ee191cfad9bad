package core

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Como um padrão de regra é aplicado sobre a descrição.
const (
	PadraoExato      TipoPadrao = "exato"
	PadraoContem     TipoPadrao = "contem"
	PadraoIniciaCom  TipoPadrao = "inicia_com"
	PadraoTerminaCom TipoPadrao = "termina_com"
	PadraoRegex      TipoPadrao = "regex"
)

// Condição opcional de valor das regras de membro (sempre por valor absoluto).
const (
	ValorNenhum TipoValor = "nenhum"
	ValorIgual  TipoValor = "igual"
	ValorMaior  TipoValor = "maior"
	ValorMenor  TipoValor = "menor"
)

type (
	TipoPadrao string
	TipoValor  string

	// RegraOcultacao marca transações que não devem aparecer nas listagens
	// (transferências internas, aplicações automáticas etc.).
	RegraOcultacao struct {
		ID           int64
		Nome         string
		Padrao       string
		TipoPadrao   TipoPadrao
		Ativo        bool
		CriadoEm     time.Time
		AtualizadoEm time.Time
	}

	// RegraMembro atribui membros a transações pela descrição e,
	// opcionalmente, por uma condição de valor.
	RegraMembro struct {
		ID           int64
		Nome         string
		TipoPadrao   TipoPadrao
		Padrao       string
		TipoValor    TipoValor
		Valor        decimal.Decimal
		TemValor     bool
		Prioridade   int
		Ativo        bool
		MembroIDs    []int64
		CriadoEm     time.Time
		AtualizadoEm time.Time
	}
)

// matchPadrao aplica um padrão sobre a descrição, caso-insensitivo.
// Regex inválida nunca casa.
func matchPadrao(tipo TipoPadrao, padrao, descricao string) bool {
	desc := strings.ToLower(strings.TrimSpace(descricao))
	alvo := strings.ToLower(strings.TrimSpace(padrao))
	if desc == "" || alvo == "" {
		return false
	}

	switch tipo {
	case PadraoExato:
		return desc == alvo
	case PadraoContem:
		return strings.Contains(desc, alvo)
	case PadraoIniciaCom:
		return strings.HasPrefix(desc, alvo)
	case PadraoTerminaCom:
		return strings.HasSuffix(desc, alvo)
	case PadraoRegex:
		re, err := regexp.Compile("(?i)" + strings.TrimSpace(padrao))
		if err != nil {
			return false
		}
		return re.MatchString(strings.TrimSpace(descricao))
	}
	return false
}

// Match informa se a transação com esta descrição deve ser ocultada.
func (r RegraOcultacao) Match(descricao string) bool {
	if !r.Ativo {
		return false
	}
	return matchPadrao(r.TipoPadrao, r.Padrao, descricao)
}

// AplicaPara informa se a regra casa com a descrição e o valor dados.
// A comparação de valor ignora o sinal: regras valem igualmente para
// débitos e créditos.
func (r RegraMembro) AplicaPara(descricao string, valor decimal.Decimal) bool {
	if !r.Ativo {
		return false
	}
	if !matchPadrao(r.TipoPadrao, r.Padrao, descricao) {
		return false
	}

	switch r.TipoValor {
	case "", ValorNenhum:
		return true
	}
	if !r.TemValor {
		return false
	}

	v := valor.Abs()
	alvo := r.Valor.Abs()
	switch r.TipoValor {
	case ValorIgual:
		return v.Equal(alvo)
	case ValorMaior:
		return v.GreaterThan(alvo)
	case ValorMenor:
		return v.LessThan(alvo)
	}
	return false
}

// OcultaEfetiva combina a marcação manual com o resultado das regras:
// uma transação marcada à mão permanece oculta mesmo sem regra casando.
func OcultaEfetiva(ocultaManual bool, descricao string, regras []RegraOcultacao) bool {
	if ocultaManual {
		return true
	}
	for _, r := range regras {
		if r.Match(descricao) {
			return true
		}
	}
	return false
}
