package ofx

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	reSTMTRSOpen = regexp.MustCompile(`(?i)<STMTRS>`)

	reLedger = regexp.MustCompile(`(?is)<LEDGERBAL>(.*?)(?:</LEDGERBAL>|<AVAILBAL>|</STMTRS>|$)`)
)

// splitSTMTRS fatia o texto em blocos, um por extrato. Em SGML os blocos não
// têm fechamento, então cada um vai até o próximo <STMTRS> ou o fim.
func splitSTMTRS(text string) []string {
	locs := reSTMTRSOpen.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	blocks := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		blocks = append(blocks, text[loc[1]:end])
	}
	return blocks
}

// ParseData converte datas OFX: "YYYYMMDDHHMMSS[-3:BRT]", "YYYYMMDD", etc.
func ParseData(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("data OFX vazia")
	}
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	for _, layout := range []string{"20060102150405", "200601021504", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}
	if len(s) >= 8 {
		if t, err := time.Parse("20060102", s[:8]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("data OFX inválida: %q", s)
}

// parseValor aceita ponto ou vírgula como separador decimal (OFX não usa
// separador de milhar).
func parseValor(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	return decimal.NewFromString(s)
}

// Parse extrai todos os blocos STMTRS de um arquivo já pré-processado.
// Blocos sem ACCTID são descartados; transações sem valor também.
func Parse(text string) (*Documento, error) {
	blocks := splitSTMTRS(text)
	if len(blocks) == 0 {
		// alguns arquivos de saldo não trazem STMTRS delimitado; trata o
		// conteúdo inteiro como um bloco único
		blocks = []string{text}
	}

	doc := &Documento{}
	for _, body := range blocks {
		ext := Extrato{
			BankID:  tagValue(body, "BANKID"),
			Agencia: tagValue(body, "BRANCHID"),
			Conta:   tagValue(body, "ACCTID"),
		}
		if ext.Conta == "" {
			continue
		}

		for _, tm := range reSTMTTRN.FindAllStringSubmatch(body, -1) {
			block := tm[1]
			tx := Transacao{
				FitID:    tagValue(block, "FITID"),
				Nome:     firstNonEmpty(tagValue(block, "NAME"), tagValue(block, "PAYEE")),
				Memo:     tagValue(block, "MEMO"),
				CheckNum: tagValue(block, "CHECKNUM"),
				Tipo:     tagValue(block, "TRNTYPE"),
			}

			if raw := tagValue(block, "DTPOSTED"); raw != "" {
				if d, err := ParseData(raw); err == nil {
					tx.Data = d
					tx.TemData = true
				}
			}

			valor, err := parseValor(tagValue(block, "TRNAMT"))
			if err != nil {
				continue
			}
			tx.Valor = valor
			ext.Transacoes = append(ext.Transacoes, tx)
		}

		if lm := reLedger.FindStringSubmatch(body); lm != nil {
			balamt := tagValue(lm[1], "BALAMT")
			dtasof := tagValue(lm[1], "DTASOF")
			if balamt != "" && dtasof != "" {
				valor, errV := parseValor(balamt)
				data, errD := ParseData(dtasof)
				if errV == nil && errD == nil {
					ext.Saldo = &SaldoLedger{Valor: valor, Data: data}
				}
			}
		}

		doc.Extratos = append(doc.Extratos, ext)
	}

	if len(doc.Extratos) == 0 {
		return nil, fmt.Errorf("nenhum extrato com ACCTID encontrado")
	}
	return doc, nil
}

// ParseBytes pré-processa e faz o parse em um passo.
func ParseBytes(raw []byte) (*Documento, error) {
	return Parse(Preprocess(raw))
}

// ComposeDescricao monta a descrição curta de uma transação, na ordem de
// preferência NAME/PAYEE, MEMO, CHECKNUM e TYPE, ignorando tipos genéricos.
// Limitada a 255 caracteres.
func ComposeDescricao(tx Transacao) string {
	var partes []string
	nome := strings.TrimSpace(tx.Nome)
	memo := strings.TrimSpace(tx.Memo)

	if nome != "" {
		partes = append(partes, nome)
	}
	if memo != "" && memo != nome {
		partes = append(partes, memo)
	}
	if c := strings.TrimSpace(tx.CheckNum); c != "" {
		partes = append(partes, "cheque "+c)
	}
	if t := strings.TrimSpace(tx.Tipo); t != "" {
		switch strings.ToLower(t) {
		case "other", "debit", "credit":
		default:
			partes = append(partes, t)
		}
	}

	descr := strings.Join(partes, " - ")
	// corte por runas, nunca no meio de um caractere multibyte
	if r := []rune(descr); len(r) > 255 {
		descr = string(r[:255])
	}
	return descr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
