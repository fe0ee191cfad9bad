package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRegraOcultacaoMatch(t *testing.T) {
	cases := []struct {
		name      string
		tipo      TipoPadrao
		padrao    string
		descricao string
		want      bool
	}{
		{"exato casa", PadraoExato, "bb rende facil", "BB Rende Facil", true},
		{"exato nao casa parcial", PadraoExato, "bb rende", "bb rende facil", false},
		{"contem", PadraoContem, "rende facil", "aplic bb rende facil", true},
		{"inicia com", PadraoIniciaCom, "aplic", "aplicacao automatica", true},
		{"inicia com no meio", PadraoIniciaCom, "automatica", "aplicacao automatica", false},
		{"termina com", PadraoTerminaCom, "automatica", "aplicacao automatica", true},
		{"regex", PadraoRegex, `^pix (enviado|recebido)\b`, "PIX ENVIADO 123", true},
		{"regex invalida nunca casa", PadraoRegex, `([`, "qualquer coisa", false},
		{"descricao vazia", PadraoContem, "x", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := RegraOcultacao{Nome: tc.name, Padrao: tc.padrao, TipoPadrao: tc.tipo, Ativo: true}
			if got := r.Match(tc.descricao); got != tc.want {
				t.Errorf("Match(%q) = %v, want %v", tc.descricao, got, tc.want)
			}
		})
	}

	t.Run("regra inativa nao casa", func(t *testing.T) {
		r := RegraOcultacao{Padrao: "pix", TipoPadrao: PadraoContem, Ativo: false}
		if r.Match("pix enviado") {
			t.Error("regra inativa casou")
		}
	})
}

func TestRegraMembroAplicaPara(t *testing.T) {
	dec := func(s string) decimal.Decimal {
		d, _ := decimal.NewFromString(s)
		return d
	}

	cases := []struct {
		name  string
		regra RegraMembro
		desc  string
		valor string
		want  bool
	}{
		{
			"sem condicao de valor",
			RegraMembro{TipoPadrao: PadraoContem, Padrao: "ifood", TipoValor: ValorNenhum, Ativo: true},
			"ifood *mercado", "-54.90", true,
		},
		{
			"valor igual ignora sinal",
			RegraMembro{TipoPadrao: PadraoContem, Padrao: "escola", TipoValor: ValorIgual, Valor: dec("1200"), TemValor: true, Ativo: true},
			"mensalidade escola", "-1200.00", true,
		},
		{
			"valor maior",
			RegraMembro{TipoPadrao: PadraoContem, Padrao: "pix", TipoValor: ValorMaior, Valor: dec("500"), TemValor: true, Ativo: true},
			"pix enviado", "-499.99", false,
		},
		{
			"valor menor",
			RegraMembro{TipoPadrao: PadraoContem, Padrao: "uber", TipoValor: ValorMenor, Valor: dec("100"), TemValor: true, Ativo: true},
			"uber trip", "-42.50", true,
		},
		{
			"condicao sem valor configurado",
			RegraMembro{TipoPadrao: PadraoContem, Padrao: "pix", TipoValor: ValorIgual, Ativo: true},
			"pix enviado", "-10", false,
		},
		{
			"descricao nao casa",
			RegraMembro{TipoPadrao: PadraoIniciaCom, Padrao: "uber", Ativo: true},
			"99 pop", "-20", false,
		},
		{
			"inativa",
			RegraMembro{TipoPadrao: PadraoContem, Padrao: "uber", Ativo: false},
			"uber trip", "-20", false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.regra.AplicaPara(tc.desc, dec(tc.valor)); got != tc.want {
				t.Errorf("AplicaPara(%q, %s) = %v, want %v", tc.desc, tc.valor, got, tc.want)
			}
		})
	}
}

func TestOcultaEfetiva(t *testing.T) {
	regras := []RegraOcultacao{
		{Padrao: "rende facil", TipoPadrao: PadraoContem, Ativo: true},
		{Padrao: "saldo anterior", TipoPadrao: PadraoExato, Ativo: false},
	}

	if !OcultaEfetiva(false, "bb rende facil aplic", regras) {
		t.Error("regra ativa deveria ocultar")
	}
	if OcultaEfetiva(false, "saldo anterior", regras) {
		t.Error("regra inativa nao deveria ocultar")
	}
	if !OcultaEfetiva(true, "mercado", regras) {
		t.Error("ocultacao manual deveria prevalecer")
	}
	if OcultaEfetiva(false, "mercado", nil) {
		t.Error("sem regras nada deve ser ocultado")
	}
}
