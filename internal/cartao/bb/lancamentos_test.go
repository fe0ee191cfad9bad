package bb

import (
	"testing"
	"time"
)

func fechadoEm(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 8, 27, 0, 0, 0, 0, time.UTC)
}

func TestParseLancamentos(t *testing.T) {
	linhas := ParseLancamentos(faturaTexto, fechadoEm(t))

	if len(linhas) != 4 {
		for _, l := range linhas {
			t.Logf("linha: %s %s %s", l.Data.Format("2006-01-02"), l.Descricao, l.Valor)
		}
		t.Fatalf("lançamentos = %d, want 4", len(linhas))
	}

	// ordenados por data
	mercado := linhas[0]
	if mercado.Descricao != "SUPERMERCADO ZONA SUL RIO DE JANEIR" {
		t.Errorf("descrição = %q", mercado.Descricao)
	}
	if mercado.Valor.StringFixed(2) != "412.37" {
		t.Errorf("valor = %s", mercado.Valor)
	}
	if mercado.Secao != "Compras Nacionais" {
		t.Errorf("seção = %q", mercado.Secao)
	}
	if !mercado.Data.Equal(time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("data = %s", mercado.Data)
	}

	openai := linhas[2]
	if openai.Descricao != "OPENAI CHATGPT SUBSCR" {
		t.Errorf("descrição internacional = %q", openai.Descricao)
	}
	if openai.Pais != "CA" {
		t.Errorf("país = %q", openai.Pais)
	}
	if openai.Secao != "Compras Internacionais" {
		t.Errorf("seção = %q", openai.Secao)
	}
	if openai.Valor.StringFixed(2) != "113.93" {
		t.Errorf("valor em BRL = %s", openai.Valor)
	}

	parcelado := linhas[3]
	if parcelado.EtiquetaParcela != "PARC 05/12" {
		t.Errorf("etiqueta = %q", parcelado.EtiquetaParcela)
	}
	if parcelado.ParcelaNum != 5 || parcelado.ParcelaTotal != 12 {
		t.Errorf("parcela = %d/%d", parcelado.ParcelaNum, parcelado.ParcelaTotal)
	}
	if parcelado.Secao != "Parcelados" {
		t.Errorf("seção = %q", parcelado.Secao)
	}

	// pagamento da fatura anterior não vira lançamento
	for _, l := range linhas {
		if l.Valor.IsNegative() {
			t.Errorf("pagamento não deveria ter sido importado: %q %s", l.Descricao, l.Valor)
		}
	}
}

func TestParseLancamentosRolloverAno(t *testing.T) {
	texto := `Lançamentos nesta fatura
28/12 COMPRA DE NATAL R$ 100,00
05/01 COMPRA DE JANEIRO R$ 50,00`

	fechado := time.Date(2026, 1, 27, 0, 0, 0, 0, time.UTC)
	linhas := ParseLancamentos(texto, fechado)
	if len(linhas) != 2 {
		t.Fatalf("lançamentos = %d, want 2", len(linhas))
	}
	// 28/12 é posterior ao fechamento de 27/01 se ficasse em 2026 → ano anterior
	if linhas[0].Data.Year() != 2025 || linhas[0].Data.Month() != 12 {
		t.Errorf("data com rollover = %s", linhas[0].Data)
	}
	if linhas[1].Data.Year() != 2026 || linhas[1].Data.Month() != 1 {
		t.Errorf("data sem rollover = %s", linhas[1].Data)
	}
}

func TestParseLancamentosDuplicadosLegitimos(t *testing.T) {
	texto := `Lançamentos nesta fatura
10/08 UBER TRIP SAO PAULO R$ 24,90
10/08 UBER TRIP SAO PAULO R$ 24,90`

	linhas := ParseLancamentos(texto, fechadoEm(t))
	if len(linhas) != 2 {
		t.Fatalf("lançamentos = %d, want 2", len(linhas))
	}
	if linhas[0].HashLinha != linhas[1].HashLinha {
		t.Error("linhas idênticas deveriam ter o mesmo hash")
	}
	if linhas[0].HashOrdem != 1 || linhas[1].HashOrdem != 2 {
		t.Errorf("ordem = %d, %d", linhas[0].HashOrdem, linhas[1].HashOrdem)
	}
	if linhas[0].IsDuplicado || !linhas[1].IsDuplicado {
		t.Errorf("is_duplicado = %v, %v", linhas[0].IsDuplicado, linhas[1].IsDuplicado)
	}
}

func TestParseLancamentosBlocoMultilinha(t *testing.T) {
	texto := `Lançamentos nesta fatura
15/08 AMAZON MARKETPLACE
PEDIDO 123-456
R$ 312,40`

	linhas := ParseLancamentos(texto, fechadoEm(t))
	if len(linhas) != 1 {
		t.Fatalf("lançamentos = %d, want 1", len(linhas))
	}
	if linhas[0].Descricao != "AMAZON MARKETPLACE PEDIDO 123-456" {
		t.Errorf("descrição = %q", linhas[0].Descricao)
	}
	if linhas[0].Valor.StringFixed(2) != "312.40" {
		t.Errorf("valor = %s", linhas[0].Valor)
	}
}

func TestParseLancamentosTextoVazio(t *testing.T) {
	if got := ParseLancamentos("", fechadoEm(t)); got != nil {
		t.Errorf("texto vazio deveria devolver nil, veio %d linhas", len(got))
	}
}
