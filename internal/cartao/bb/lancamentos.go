package bb

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"financas/internal/core"
)

// Linha é um lançamento bruto extraído da fatura, antes de virar
// core.Lancamento.
type Linha struct {
	Data            time.Time
	Descricao       string
	Cidade          string
	Pais            string
	Secao           string
	Valor           decimal.Decimal
	EtiquetaParcela string
	ParcelaNum      int
	ParcelaTotal    int
	HashLinha       string
	HashOrdem       int
	IsDuplicado     bool
}

var (
	reDataCurta  = regexp.MustCompile(`^(\d{2})/(\d{2})\b`)
	reValorFinal = regexp.MustCompile(`R\$\s*([+\-]?\s*[\d\.,]+)\s*$`)

	// linhas de valor que nunca são lançamentos
	reSkipValor = regexp.MustCompile(`(?i)(PGTO\s+DEBITO|SUBTOTAL|TOTAL\s+DA\s+FATURA)`)

	// pagamento da fatura anterior: descartado quando o valor é negativo
	rePgtoDebito = regexp.MustCompile(`(?i)\bPGTO\b.*\bDEBITO\b`)

	// moeda/valor no fim da linha, para limpar da descrição
	reMoedaFim = regexp.MustCompile(`\s*(?:R\$|US\$|USD|\$)\s*[+\-]?\s*\d{1,3}(?:\.\d{3})*(?:[.,]\d{2})\s*$`)

	// país imediatamente antes do valor ou no fim da linha
	rePaisPreValor = regexp.MustCompile(`\s+([A-Z]{2,3})\s+(?:R\$|US\$|USD|\$)\s*[+\-]?\s*\d`)
	rePaisFim      = regexp.MustCompile(`\s+([A-Z]{2,3})\s*$`)

	reParcela = regexp.MustCompile(`(?i)\bPARC\s+(\d{2})/(\d{2})\b`)

	reSecao = regexp.MustCompile(`(?i)^(` +
		`COMPRAS\s+NAC(?:IONAIS)?|` +
		`COMPRAS\s+INT(?:ERNACIONAIS)?|` +
		`LAN[ÇC]AMENTOS\s+DIVERSOS|` +
		`ASSINATURAS(?:\s+E\s+SERVI[ÇC]OS)?|` +
		`PARCELADOS?|` +
		`TARIFAS?|` +
		`SEGUROS?|` +
		`ESTORNOS?|` +
		`OUTROS\s+LAN[ÇC]AMENTOS?|` +
		`SERVI[ÇC]OS` +
		`)\b`)

	reMultiEspaco = regexp.MustCompile(`\s{2,}`)
)

var secoesCanonicas = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`COMPRAS\s+INT`), "Compras Internacionais"},
	{regexp.MustCompile(`COMPRAS\s+NAC`), "Compras Nacionais"},
	{regexp.MustCompile(`ASSINATURAS`), "Assinaturas/Serviços"},
	{regexp.MustCompile(`PARCELAD`), "Parcelados"},
	{regexp.MustCompile(`TARIF`), "Tarifas"},
	{regexp.MustCompile(`SEGURO`), "Seguros"},
	{regexp.MustCompile(`ESTORNO`), "Estornos"},
	{regexp.MustCompile(`LANCAMENTOS\s+DIVERSOS`), "Lançamentos Diversos"},
	{regexp.MustCompile(`SERVICOS`), "Serviços"},
	{regexp.MustCompile(`OUTROS`), "Outros"},
}

func normalizarSecao(s string) string {
	base := core.NormalizarMaiusculas(s)
	for _, sc := range secoesCanonicas {
		if sc.re.MatchString(base) {
			return sc.label
		}
	}
	palavras := strings.Fields(strings.ToLower(base))
	for i, w := range palavras {
		palavras[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(palavras, " ")
}

// hashLinha identifica um lançamento dentro da fatura. Lançamentos legítimos
// idênticos no mesmo dia são distinguidos pelo ordinal por hash.
func hashLinha(data time.Time, cents int64, desc, cidade, pais, etiqueta string) string {
	base := fmt.Sprintf("%s|%d|%s|%s|%s|%s",
		data.Format("2006-01-02"), cents,
		core.NormalizarMaiusculas(desc),
		core.NormalizarMaiusculas(cidade),
		core.NormalizarMaiusculas(pais),
		core.NormalizarMaiusculas(etiqueta))
	return sha1Hex(base)
}

// rolloverAno resolve o ano de uma data DD/MM: lançamentos posteriores ao
// fechamento pertencem ao ano anterior.
func rolloverAno(dia, mes int, fechadoEm time.Time) time.Time {
	dt := time.Date(fechadoEm.Year(), time.Month(mes), dia, 0, 0, 0, 0, time.UTC)
	if dt.After(fechadoEm) {
		dt = time.Date(fechadoEm.Year()-1, time.Month(mes), dia, 0, 0, 0, 0, time.UTC)
	}
	return dt
}

func linhasAposAncora(texto string) []string {
	linhas := strings.Split(texto, "\n")
	for i, raw := range linhas {
		if reAnchorLancamentos.MatchString(raw) {
			return linhas[i+1:]
		}
	}
	return linhas
}

// limparPrimeiraLinha remove o valor do fim da linha e captura o país quando
// ele aparece imediatamente antes do valor ou no final. Não tenta remover
// cidade para não comer nomes de lojas.
func limparPrimeiraLinha(s string) (string, string) {
	txt := strings.TrimSpace(s)
	if txt == "" {
		return "", ""
	}
	pais := ""

	if m := rePaisPreValor.FindStringSubmatchIndex(txt); m != nil {
		pais = txt[m[2]:m[3]]
		txt = strings.TrimSpace(txt[:m[2]] + txt[m[3]:])
	}

	txt = strings.TrimSpace(reMoedaFim.ReplaceAllString(txt, ""))

	if pais == "" {
		if m := rePaisFim.FindStringSubmatch(txt); m != nil {
			pais = m[1]
			txt = strings.TrimSpace(rePaisFim.ReplaceAllString(txt, ""))
		}
	}

	return reMultiEspaco.ReplaceAllString(txt, " "), pais
}

// ParseLancamentos extrai as linhas de lançamento do texto da fatura.
//
// Blocos começam em linhas DD/MM e acumulam continuações até a linha que
// carrega o valor R$. Cabeçalhos de seção entre blocos (COMPRAS NACIONAIS,
// PARCELADOS, ...) etiquetam os lançamentos seguintes. Pagamentos da fatura
// anterior (PGTO ... DEBITO com valor negativo) são descartados.
func ParseLancamentos(texto string, fechadoEm time.Time) []Linha {
	if len(strings.TrimSpace(texto)) < 30 {
		return nil
	}

	var (
		linhas       []Linha
		contagem     = map[string]int{}
		currentBlock []string
		currentSecao string
	)

	flush := func() {
		block := currentBlock
		currentBlock = nil
		if len(block) == 0 {
			return
		}

		first := strings.TrimSpace(block[0])
		mData := reDataCurta.FindStringSubmatch(first)
		if mData == nil {
			return
		}
		dia, _ := strconv.Atoi(mData[1])
		mes, _ := strconv.Atoi(mData[2])
		if mes < 1 || mes > 12 || dia < 1 || dia > 31 {
			return
		}
		dataLcto := rolloverAno(dia, mes, fechadoEm)

		// primeira linha com R$ no fim, ignorando PGTO DEBITO/SUBTOTAL/TOTAL
		valorIdx := -1
		var mValor []string
		for j, cand := range block {
			cand = strings.TrimSpace(cand)
			if reSkipValor.MatchString(cand) {
				continue
			}
			if mv := reValorFinal.FindStringSubmatch(cand); mv != nil {
				valorIdx = j
				mValor = mv
				break
			}
		}
		if valorIdx == -1 {
			return
		}

		valor, err := core.ParseDecimalBR(strings.ReplaceAll(mValor[1], " ", ""))
		if err != nil {
			return
		}

		// descrição: primeira linha sem a data, limpa, mais o miolo até o valor
		primeiraSemData := strings.TrimSpace(first[len(mData[0]):])
		primeiraLimpa, pais := limparPrimeiraLinha(primeiraSemData)

		partes := make([]string, 0, valorIdx+1)
		if primeiraLimpa != "" {
			partes = append(partes, primeiraLimpa)
		}
		for _, part := range block[1:valorIdx] {
			if pt := strings.TrimSpace(part); pt != "" {
				partes = append(partes, pt)
			}
		}
		descricao := reMultiEspaco.ReplaceAllString(strings.TrimSpace(strings.Join(partes, " ")), " ")
		if descricao == "" {
			descricao = strings.TrimSpace(reMoedaFim.ReplaceAllString(primeiraSemData, ""))
			if descricao == "" {
				descricao = "LANÇAMENTO"
			}
		}

		if valor.IsNegative() && rePgtoDebito.MatchString(strings.ToUpper(descricao)) {
			return
		}

		// parcelas: busca no bloco até a linha do valor
		etiqueta := ""
		parcelaNum, parcelaTotal := 0, 0
		blocoAteValor := strings.Join(block[:valorIdx+1], " ")
		if m := reParcela.FindStringSubmatch(blocoAteValor); m != nil {
			etiqueta = m[0]
			parcelaNum, _ = strconv.Atoi(m[1])
			parcelaTotal, _ = strconv.Atoi(m[2])
		}

		h := hashLinha(dataLcto, core.Cents(valor), descricao, "", pais, etiqueta)
		contagem[h]++
		ordem := contagem[h]

		linhas = append(linhas, Linha{
			Data:            dataLcto,
			Descricao:       descricao,
			Pais:            pais,
			Secao:           currentSecao,
			Valor:           valor,
			EtiquetaParcela: etiqueta,
			ParcelaNum:      parcelaNum,
			ParcelaTotal:    parcelaTotal,
			HashLinha:       h,
			HashOrdem:       ordem,
			IsDuplicado:     ordem > 1,
		})
	}

	for _, raw := range linhasAposAncora(texto) {
		t := strings.TrimSpace(raw)
		if t == "" {
			continue
		}

		if !reDataCurta.MatchString(t) && reSecao.MatchString(t) {
			flush()
			currentSecao = normalizarSecao(t)
			continue
		}

		if reDataCurta.MatchString(t) {
			flush()
			currentBlock = []string{t}
		} else if currentBlock != nil {
			currentBlock = append(currentBlock, t)
		}
	}
	flush()

	sort.SliceStable(linhas, func(i, j int) bool { return linhas[i].Data.Before(linhas[j].Data) })
	return linhas
}
