// Package bb parses Banco do Brasil credit-card statements.
//
// The input is the plain text extracted from the statement PDF. Parsing is
// two-phase: DadosFatura reads the header (closing/due dates, card digits,
// brand, total) and ParseLancamentos walks the entry lines after the
// "Lançamentos nesta fatura" anchor.
package bb

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"financas/internal/core"
)

// DadosFatura é o cabeçalho extraído de uma fatura.
type DadosFatura struct {
	Emissor      string
	CartaoFinal  string
	Bandeira     string
	FechadoEm    time.Time
	VencimentoEm time.Time
	Competencia  time.Time
	Total        decimal.Decimal
	TemTotal     bool
	ArquivoHash  string
	Observacoes  []string
}

const dataBR = `(\d{2}/\d{2}/\d{4})`

var (
	reAnchorLancamentos = regexp.MustCompile(`(?i)LAN[ÇC]AMENTOS\s+NESTA\s+FATURA`)

	reFechamento = regexp.MustCompile(`(?is)(?:fatura\s+fechada\s+em|fechada\s+em)\s+` + dataBR)
	reVencimento = regexp.MustCompile(`(?is)vencimento\b.{0,80}?` + dataBR)
	reFinal      = regexp.MustCompile(`(?is)final\s*(\d{4})\b`)

	// apenas a linha TOTAL DA FATURA; SUBTOTAL não conta
	reTotalFatura = regexp.MustCompile(`(?is)TOTAL\s+DA\s+FATURA\b.*?R\$\s*([+\-]?\s*[\d\.,]+)`)

	// bandeira: prioriza o cabeçalho "OUROCARD <BANDEIRA> ..."
	reBandeiraOurocard = regexp.MustCompile(`(?is)OUROCARD\b[^A-Za-z0-9]+(VISA|MASTERCARD|ELO|AMEX|AMERICAN\s+EXPRESS|PLATINUM)\b`)
	reBandeiraGenerica = regexp.MustCompile(`(?is)\b(VISA|MASTERCARD|ELO|AMEX|AMERICAN\s+EXPRESS|HIPERCARD)\b`)
)

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// textoAposAncora devolve as linhas após "Lançamentos nesta fatura". Se a
// âncora não existir devolve o texto inteiro e found=false.
func textoAposAncora(texto string) (string, bool) {
	linhas := strings.Split(texto, "\n")
	for i, ln := range linhas {
		if reAnchorLancamentos.MatchString(ln) {
			return strings.Join(linhas[i+1:], "\n"), true
		}
	}
	return texto, false
}

func extrairBandeira(texto string) (string, []string) {
	if m := reBandeiraOurocard.FindStringSubmatch(texto); m != nil {
		return normalizarBandeira(m[1]), nil
	}
	if m := reBandeiraGenerica.FindStringSubmatch(texto); m != nil {
		return normalizarBandeira(m[1]), []string{
			"Bandeira detectada fora do cabeçalho OUROCARD; verifique se está correta.",
		}
	}
	return "", []string{"Bandeira do cartão não detectada no PDF."}
}

func normalizarBandeira(b string) string {
	b = strings.ToUpper(strings.Join(strings.Fields(b), " "))
	if b == "AMERICAN EXPRESS" {
		return "AMEX"
	}
	return b
}

// ParseDadosFatura extrai o cabeçalho da fatura do texto do PDF.
//
// Fechamento, vencimento e final do cartão são obrigatórios; a ausência de
// qualquer um deles gera erro com uma prévia das linhas relevantes para
// diagnóstico. O total é buscado somente após a âncora de lançamentos, e o
// hash sha1 do texto completo garante idempotência da importação.
func ParseDadosFatura(texto, emissor string) (*DadosFatura, error) {
	if len(strings.TrimSpace(texto)) < 30 {
		return nil, fmt.Errorf("pouco texto extraído; o PDF pode ser escaneado sem OCR")
	}
	if emissor == "" {
		emissor = "Banco do Brasil"
	}

	dados := &DadosFatura{
		Emissor:     emissor,
		ArquivoHash: sha1Hex(texto),
	}

	mFech := reFechamento.FindStringSubmatch(texto)
	mVenc := reVencimento.FindStringSubmatch(texto)
	mFinal := reFinal.FindStringSubmatch(texto)

	var faltando []string
	if mFech == nil {
		faltando = append(faltando, `fechamento ("Fatura fechada em")`)
	}
	if mVenc == nil {
		faltando = append(faltando, `vencimento ("Vencimento")`)
	}
	if mFinal == nil {
		faltando = append(faltando, `final do cartão ("Final 1234")`)
	}
	if len(faltando) > 0 {
		return nil, fmt.Errorf("dados da fatura não encontrados: %s\nPrévia de linhas relevantes:\n%s",
			strings.Join(faltando, ", "), previaLinhas(texto))
	}

	var err error
	if dados.FechadoEm, err = time.Parse("02/01/2006", mFech[1]); err != nil {
		return nil, fmt.Errorf("data de fechamento inválida %q: %w", mFech[1], err)
	}
	if dados.VencimentoEm, err = time.Parse("02/01/2006", mVenc[1]); err != nil {
		return nil, fmt.Errorf("data de vencimento inválida %q: %w", mVenc[1], err)
	}
	if dados.VencimentoEm.Before(dados.FechadoEm) {
		dados.Observacoes = append(dados.Observacoes, fmt.Sprintf(
			"Vencimento (%s) anterior ao fechamento (%s). Verificar PDF.",
			dados.VencimentoEm.Format("02/01/2006"), dados.FechadoEm.Format("02/01/2006")))
	}

	dados.CartaoFinal = mFinal[1]

	bandeira, obs := extrairBandeira(texto)
	dados.Bandeira = bandeira
	dados.Observacoes = append(dados.Observacoes, obs...)

	posAncora, achou := textoAposAncora(texto)
	if !achou {
		dados.Observacoes = append(dados.Observacoes,
			"Âncora 'Lançamentos nesta fatura' não encontrada; total buscado no texto inteiro.")
	}
	if m := reTotalFatura.FindStringSubmatch(posAncora); m != nil {
		total, err := core.ParseDecimalBR(strings.ReplaceAll(m[1], " ", ""))
		if err == nil {
			dados.Total = total
			dados.TemTotal = true
		}
	}
	if !dados.TemTotal {
		dados.Observacoes = append(dados.Observacoes,
			"Total da Fatura (após a âncora) não encontrado no PDF.")
	}

	dados.Competencia = core.Competencia(dados.FechadoEm)
	return dados, nil
}

// previaLinhas seleciona as linhas do texto que provavelmente interessam ao
// diagnóstico de um cabeçalho incompleto.
func previaLinhas(texto string) string {
	chaves := []string{
		"fatura fechada", "fechada em", "vencimento", "final", "cartão",
		"total", "ourocard", "visa", "mastercard", "elo", "amex",
	}
	var hits []string
	for _, ln := range strings.Split(texto, "\n") {
		low := strings.ToLower(ln)
		for _, ch := range chaves {
			if strings.Contains(low, ch) {
				hits = append(hits, ln)
				break
			}
		}
		if len(hits) >= 12 {
			break
		}
	}
	if len(hits) == 0 {
		linhas := strings.Split(texto, "\n")
		if len(linhas) > 18 {
			linhas = linhas[:18]
		}
		return strings.Join(linhas, "\n")
	}
	return strings.Join(hits, "\n")
}
