package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"financas/internal/storage"
)

const faturaTexto = `BANCO DO BRASIL S.A.
OUROCARD VISA INFINITE
Cartão final 6462
Fatura fechada em 27/08/2025
Vencimento em 05/09/2025

Lançamentos nesta fatura
COMPRAS NACIONAIS
10/08 SUPERMERCADO ZONA SUL RIO DE JANEIR R$ 412,37
15/08 AMAZON BR SAO PAULO R$ 89,90
PARCELADOS
20/08 MAGAZINELUIZA PARC 05/12 R$ 363,93
TOTAL DA FATURA R$ 866,20`

// svcPDF monta o serviço com um extrator falso que devolve o conteúdo de um
// arquivo de texto no lugar de um PDF real.
func svcPDF(repo *storage.SQLiteRepository) *ImportPDFService {
	return NewImportPDFService(repo, NewRegrasService(repo), nil).
		WithExtractor(func(path string) (string, error) {
			raw, err := os.ReadFile(path)
			return string(raw), err
		})
}

func escreverPDF(t *testing.T, dir, nome, conteudo string) string {
	t.Helper()
	path := filepath.Join(dir, nome)
	if err := os.WriteFile(path, []byte(conteudo), 0644); err != nil {
		t.Fatalf("escrever fixture: %v", err)
	}
	return path
}

func TestImportPDF(t *testing.T) {
	repo := repoDeTeste(t)
	svc := svcPDF(repo)
	ctx := context.Background()

	path := escreverPDF(t, t.TempDir(), "fatura.pdf", faturaTexto)

	res, err := svc.Importar(ctx, path, ImportPDFOptions{Titular: "Fulano"})
	if err != nil {
		t.Fatalf("Importar: %v", err)
	}
	if res.Novas != 1 || res.Lancamentos != 3 {
		t.Errorf("resultado = %+v", res)
	}
	if len(res.Avisos) != 0 {
		t.Errorf("soma bate com o total, não deveria haver aviso: %v", res.Avisos)
	}

	cartoes, _ := repo.ListCartoes(ctx)
	if len(cartoes) != 1 {
		t.Fatalf("cartões = %d, want 1", len(cartoes))
	}
	if cartoes[0].CartaoFinal != "6462" || cartoes[0].Bandeira != "VISA" || cartoes[0].Titular != "Fulano" {
		t.Errorf("cartão = %+v", cartoes[0])
	}

	faturas, _ := repo.ListFaturas(ctx)
	if len(faturas) != 1 {
		t.Fatalf("faturas = %d, want 1", len(faturas))
	}
	f := faturas[0]
	if !f.Competencia.Equal(dia(2025, 8, 1)) || f.Lancamentos != 3 || f.SomaCents != 86620 {
		t.Errorf("fatura = %+v", f)
	}

	lancamentos, _ := repo.ListLancamentos(ctx, storage.LancamentoFilter{Ano: 2025, Mes: 8})
	if len(lancamentos) != 3 {
		t.Fatalf("lançamentos = %d, want 3", len(lancamentos))
	}
}

func TestImportPDFIdempotente(t *testing.T) {
	repo := repoDeTeste(t)
	svc := svcPDF(repo)
	ctx := context.Background()

	path := escreverPDF(t, t.TempDir(), "fatura.pdf", faturaTexto)
	if _, err := svc.Importar(ctx, path, ImportPDFOptions{}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Importar(ctx, path, ImportPDFOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Ignoradas != 1 || res.Novas != 0 || res.Lancamentos != 0 {
		t.Errorf("mesmo arquivo deveria ser ignorado: %+v", res)
	}
}

func TestImportPDFReplace(t *testing.T) {
	repo := repoDeTeste(t)
	svc := svcPDF(repo)
	ctx := context.Background()

	dir := t.TempDir()
	if _, err := svc.Importar(ctx, escreverPDF(t, dir, "a.pdf", faturaTexto), ImportPDFOptions{}); err != nil {
		t.Fatal(err)
	}

	// mesmo mês, arquivo revisado com uma linha a mais
	revisado := strings.Replace(faturaTexto,
		"TOTAL DA FATURA R$ 866,20",
		"22/08 PADARIA DO BAIRRO R$ 50,00\nTOTAL DA FATURA R$ 916,20", 1)
	path2 := escreverPDF(t, dir, "b.pdf", revisado)

	// sem --replace é ignorado com aviso
	res, err := svc.Importar(ctx, path2, ImportPDFOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Ignoradas != 1 || len(res.Avisos) != 1 {
		t.Errorf("sem replace: %+v", res)
	}

	res, err = svc.Importar(ctx, path2, ImportPDFOptions{Replace: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Atualizadas != 1 || res.Lancamentos != 4 {
		t.Errorf("com replace: %+v", res)
	}

	faturas, _ := repo.ListFaturas(ctx)
	if len(faturas) != 1 || faturas[0].Lancamentos != 4 || faturas[0].FonteArquivo != "b.pdf" {
		t.Errorf("fatura após replace = %+v", faturas[0])
	}
}

func TestImportPDFDivergenciaDeTotal(t *testing.T) {
	repo := repoDeTeste(t)
	svc := svcPDF(repo)

	divergente := strings.Replace(faturaTexto, "R$ 866,20", "R$ 999,99", 1)
	path := escreverPDF(t, t.TempDir(), "fatura.pdf", divergente)

	res, err := svc.Importar(context.Background(), path, ImportPDFOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Avisos) != 1 || !strings.Contains(res.Avisos[0], "diverge") {
		t.Errorf("esperava aviso de divergência: %v", res.Avisos)
	}
}
