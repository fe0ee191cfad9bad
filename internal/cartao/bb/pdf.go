package bb

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtrairTexto extrai o texto de um PDF de fatura preservando a estrutura de
// linhas, que é o que o parser de lançamentos consome. PDFs escaneados sem
// camada de texto produzem saída vazia e são rejeitados adiante.
func ExtrairTexto(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("abrir pdf %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("extrair texto da página %d: %w", i, err)
		}
		for _, row := range rows {
			var partes []string
			for _, txt := range row.Content {
				if s := strings.TrimSpace(txt.S); s != "" {
					partes = append(partes, s)
				}
			}
			if len(partes) > 0 {
				b.WriteString(strings.Join(partes, " "))
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}
