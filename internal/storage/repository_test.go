package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"financas/internal/core"
)

func novoRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "financas-test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func contaDeTeste(t *testing.T, repo *SQLiteRepository) core.Conta {
	t.Helper()
	ctx := context.Background()
	inst, err := repo.GetOrCreateInstituicao(ctx, core.InstituicaoFinanceira{
		Nome: "Banco do Brasil", Codigo: "BB",
	})
	if err != nil {
		t.Fatalf("GetOrCreateInstituicao: %v", err)
	}
	conta, err := repo.GetOrCreateConta(ctx, core.Conta{
		InstituicaoID: inst.ID,
		Numero:        "55667-8",
		Agencia:       "1234-5",
		Titular:       "Fulano",
	})
	if err != nil {
		t.Fatalf("GetOrCreateConta: %v", err)
	}
	return conta
}

func dia(ano, mes, dia int) time.Time {
	return time.Date(ano, time.Month(mes), dia, 0, 0, 0, 0, time.UTC)
}

func TestGetOrCreateInstituicaoIdempotente(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()

	a, err := repo.GetOrCreateInstituicao(ctx, core.InstituicaoFinanceira{Nome: "Caixa", Codigo: "CX"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := repo.GetOrCreateInstituicao(ctx, core.InstituicaoFinanceira{Nome: "Caixa Econômica", Codigo: "CX"})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Errorf("mesma instituição deveria ser reusada: ids %d e %d", a.ID, b.ID)
	}
	if b.Nome != "Caixa" {
		t.Errorf("nome não deveria mudar na segunda chamada: %q", b.Nome)
	}

	if _, err := repo.GetOrCreateInstituicao(ctx, core.InstituicaoFinanceira{Nome: "Sem código"}); err == nil {
		t.Error("instituição sem código deveria falhar")
	}
}

func TestGetOrCreateConta(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	conta := contaDeTeste(t, repo)

	deNovo, err := repo.GetOrCreateConta(ctx, core.Conta{
		InstituicaoID: conta.InstituicaoID,
		Numero:        "55667-8",
	})
	if err != nil {
		t.Fatal(err)
	}
	if deNovo.ID != conta.ID {
		t.Errorf("conta deveria ser reusada: ids %d e %d", deNovo.ID, conta.ID)
	}
	if deNovo.Tipo != core.ContaCorrente {
		t.Errorf("tipo padrão = %q, want corrente", deNovo.Tipo)
	}

	achadas, err := repo.FindContasPorNumero(ctx, "55667-8", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(achadas) != 1 {
		t.Fatalf("FindContasPorNumero = %d contas, want 1", len(achadas))
	}
	if achadas, _ = repo.FindContasPorNumero(ctx, "55667-8", "9999"); len(achadas) != 0 {
		t.Errorf("agência errada não deveria casar, veio %d", len(achadas))
	}
}

func TestTransacaoCicloCompleto(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	conta := contaDeTeste(t, repo)

	tx := core.Transacao{
		ContaID:   conta.ID,
		FitID:     "FIT001",
		Data:      dia(2025, 8, 10),
		Descricao: "pix recebido fulano",
		Valor:     decimal.RequireFromString("150.50"),
	}
	criada, err := repo.CreateTransacao(ctx, tx)
	if err != nil {
		t.Fatalf("CreateTransacao: %v", err)
	}
	if criada.ID == 0 {
		t.Fatal("id não atribuído")
	}

	achada, err := repo.GetTransacaoPorFitID(ctx, conta.ID, "FIT001")
	if err != nil {
		t.Fatal(err)
	}
	if achada == nil {
		t.Fatal("transação não encontrada por fitid")
	}
	if !achada.Valor.Equal(decimal.RequireFromString("150.50")) {
		t.Errorf("valor = %s, want 150.50", achada.Valor)
	}
	if !achada.Data.Equal(dia(2025, 8, 10)) {
		t.Errorf("data = %s", achada.Data)
	}

	// fitid inexistente devolve nil sem erro
	nenhuma, err := repo.GetTransacaoPorFitID(ctx, conta.ID, "NAO-EXISTE")
	if err != nil || nenhuma != nil {
		t.Errorf("fitid inexistente: (%v, %v), want (nil, nil)", nenhuma, err)
	}

	existe, err := repo.ExisteTransacaoPorDataValor(ctx, conta.ID, dia(2025, 8, 10), 15050, "pix recebido fulano")
	if err != nil || !existe {
		t.Errorf("ExisteTransacaoPorDataValor = (%v, %v), want (true, nil)", existe, err)
	}

	// criar com o mesmo (conta, fitid) viola a unicidade
	if _, err := repo.CreateTransacao(ctx, tx); err == nil {
		t.Error("fitid duplicado na mesma conta deveria falhar")
	}

	achada.Descricao = "pix recebido fulano de tal"
	achada.Valor = decimal.RequireFromString("151.00")
	if err := repo.UpdateTransacao(ctx, *achada); err != nil {
		t.Fatalf("UpdateTransacao: %v", err)
	}
	depois, _ := repo.GetTransacaoPorFitID(ctx, conta.ID, "FIT001")
	if !depois.Valor.Equal(decimal.RequireFromString("151.00")) {
		t.Errorf("valor após update = %s", depois.Valor)
	}

	if err := repo.SetOculta(ctx, criada.ID, true); err != nil {
		t.Fatalf("SetOculta: %v", err)
	}
	depois, _ = repo.GetTransacaoPorFitID(ctx, conta.ID, "FIT001")
	if !depois.Oculta {
		t.Error("oculta deveria estar marcada")
	}

	n, err := repo.DeleteTransacoesDaConta(ctx, conta.ID)
	if err != nil || n != 1 {
		t.Errorf("DeleteTransacoesDaConta = (%d, %v), want (1, nil)", n, err)
	}
}

func TestListTransacoesFiltros(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	conta := contaDeTeste(t, repo)

	seed := []struct {
		fitid  string
		data   time.Time
		desc   string
		valor  string
		oculta bool
	}{
		{"A1", dia(2025, 8, 5), "mercado central", "-120.00", false},
		{"A2", dia(2025, 8, 20), "salario empresa", "5000.00", false},
		{"A3", dia(2025, 8, 21), "aplicacao automatica", "-1000.00", true},
		{"A4", dia(2025, 7, 2), "mercado central", "-80.00", false},
	}
	for _, s := range seed {
		_, err := repo.CreateTransacao(ctx, core.Transacao{
			ContaID:   conta.ID,
			FitID:     s.fitid,
			Data:      s.data,
			Descricao: s.desc,
			Valor:     decimal.RequireFromString(s.valor),
			Oculta:    s.oculta,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", s.fitid, err)
		}
	}

	agosto, err := repo.ListTransacoes(ctx, TransacaoFilter{Ano: 2025, Mes: 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(agosto) != 2 {
		t.Fatalf("agosto sem ocultas = %d, want 2", len(agosto))
	}
	if agosto[0].FitID != "A2" {
		t.Errorf("ordenação padrão mais novo primeiro, veio %s", agosto[0].FitID)
	}

	comOcultas, _ := repo.ListTransacoes(ctx, TransacaoFilter{Ano: 2025, Mes: 8, IncluirOcultas: true})
	if len(comOcultas) != 3 {
		t.Errorf("agosto com ocultas = %d, want 3", len(comOcultas))
	}

	porValor, _ := repo.ListTransacoes(ctx, TransacaoFilter{Ano: 2025, Mes: 8, Ordenacao: OrdMaiorValor})
	if porValor[0].FitID != "A2" {
		t.Errorf("maior valor primeiro, veio %s", porValor[0].FitID)
	}

	busca, _ := repo.ListTransacoes(ctx, TransacaoFilter{Busca: "Mercado"})
	if len(busca) != 2 {
		t.Errorf("busca por 'Mercado' = %d, want 2", len(busca))
	}
}

func TestUpsertSaldo(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	conta := contaDeTeste(t, repo)

	s := core.Saldo{ContaID: conta.ID, Data: dia(2025, 8, 15), Valor: decimal.RequireFromString("1534.27")}
	if err := repo.UpsertSaldo(ctx, s); err != nil {
		t.Fatalf("UpsertSaldo: %v", err)
	}

	s.Valor = decimal.RequireFromString("1600.00")
	if err := repo.UpsertSaldo(ctx, s); err != nil {
		t.Fatalf("UpsertSaldo reimportação: %v", err)
	}

	achado, err := repo.GetSaldo(ctx, conta.ID, dia(2025, 8, 15))
	if err != nil {
		t.Fatal(err)
	}
	if achado == nil {
		t.Fatal("saldo não encontrado")
	}
	if !achado.Valor.Equal(decimal.RequireFromString("1600.00")) {
		t.Errorf("valor após upsert = %s, want 1600.00", achado.Valor)
	}
}

func TestFaturaELancamentos(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	conta := contaDeTeste(t, repo)

	cartao, err := repo.GetOrCreateCartao(ctx, core.Cartao{
		InstituicaoID: conta.InstituicaoID,
		Bandeira:      "VISA",
		CartaoFinal:   "6462",
		Titular:       "Fulano",
	})
	if err != nil {
		t.Fatalf("GetOrCreateCartao: %v", err)
	}
	mesmo, _ := repo.GetOrCreateCartao(ctx, core.Cartao{
		InstituicaoID: conta.InstituicaoID,
		Bandeira:      "VISA",
		CartaoFinal:   "6462",
	})
	if mesmo.ID != cartao.ID {
		t.Errorf("cartão deveria ser reusado: ids %d e %d", mesmo.ID, cartao.ID)
	}

	fatura, err := repo.CreateFatura(ctx, core.Fatura{
		CartaoID:     cartao.ID,
		Competencia:  dia(2025, 8, 1),
		FechadoEm:    dia(2025, 8, 27),
		VencimentoEm: dia(2025, 9, 5),
		Total:        decimal.RequireFromString("866.20"),
		TemTotal:     true,
		ArquivoHash:  "abc123",
	})
	if err != nil {
		t.Fatalf("CreateFatura: %v", err)
	}

	achada, err := repo.GetFaturaPorCompetencia(ctx, cartao.ID, dia(2025, 8, 1))
	if err != nil {
		t.Fatal(err)
	}
	if achada == nil || achada.ID != fatura.ID {
		t.Fatal("fatura não encontrada por competência")
	}
	if !achada.TemTotal || !achada.Total.Equal(decimal.RequireFromString("866.20")) {
		t.Errorf("total = %s (tem=%v)", achada.Total, achada.TemTotal)
	}

	l := core.Lancamento{
		FaturaID:  fatura.ID,
		Data:      dia(2025, 8, 10),
		Descricao: "SUPERMERCADO ZONA SUL",
		Secao:     "Compras Nacionais",
		Valor:     decimal.RequireFromString("412.37"),
		HashLinha: "hash-1",
		HashOrdem: 1,
	}
	criado, err := repo.CreateLancamento(ctx, l)
	if err != nil {
		t.Fatalf("CreateLancamento: %v", err)
	}
	if !criado {
		t.Fatal("lançamento deveria ter sido criado")
	}

	// reimportar a mesma linha é no-op
	criado, err = repo.CreateLancamento(ctx, l)
	if err != nil {
		t.Fatalf("CreateLancamento repetido: %v", err)
	}
	if criado {
		t.Error("linha repetida não deveria criar novo lançamento")
	}

	// mesma linha com ordinal 2 é um duplicado legítimo
	l.HashOrdem = 2
	l.IsDuplicado = true
	if criado, err = repo.CreateLancamento(ctx, l); err != nil || !criado {
		t.Fatalf("duplicado legítimo: (%v, %v)", criado, err)
	}

	soma, err := repo.SomaLancamentosDaFatura(ctx, fatura.ID)
	if err != nil {
		t.Fatal(err)
	}
	if soma != 82474 {
		t.Errorf("soma = %d cents, want 82474", soma)
	}

	lista, err := repo.ListLancamentos(ctx, LancamentoFilter{Ano: 2025, Mes: 8, CartaoID: cartao.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(lista) != 2 {
		t.Fatalf("ListLancamentos = %d, want 2", len(lista))
	}
	if lista[0].CartaoFinal != "6462" || lista[0].Competencia != dia(2025, 8, 1) {
		t.Errorf("dados da fatura na listagem: %q %s", lista[0].CartaoFinal, lista[0].Competencia)
	}

	faturas, err := repo.ListFaturas(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(faturas) != 1 || faturas[0].Lancamentos != 2 || faturas[0].SomaCents != 82474 {
		t.Errorf("ListFaturas = %+v", faturas)
	}

	n, err := repo.DeleteLancamentosDaFatura(ctx, fatura.ID)
	if err != nil || n != 2 {
		t.Errorf("DeleteLancamentosDaFatura = (%d, %v), want (2, nil)", n, err)
	}
}

func TestRegras(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateRegraOcultacao(ctx, core.RegraOcultacao{
		Nome: "aplicações", Padrao: "aplicacao", TipoPadrao: core.PadraoContem, Ativo: true,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateRegraOcultacao(ctx, core.RegraOcultacao{
		Nome: "desativada", Padrao: "x", TipoPadrao: core.PadraoContem, Ativo: false,
	}); err != nil {
		t.Fatal(err)
	}

	todas, err := repo.ListRegrasOcultacao(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(todas) != 2 {
		t.Errorf("todas as regras = %d, want 2", len(todas))
	}
	ativas, _ := repo.ListRegrasOcultacao(ctx, true)
	if len(ativas) != 1 || ativas[0].Nome != "aplicações" {
		t.Errorf("regras ativas = %+v", ativas)
	}

	membro, err := repo.GetOrCreateMembro(ctx, "Maria")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateRegraMembro(ctx, core.RegraMembro{
		Nome:       "mercado é da Maria",
		Padrao:     "mercado",
		TipoPadrao: core.PadraoContem,
		TipoValor:  core.ValorMaior,
		Valor:      decimal.RequireFromString("100.00"),
		TemValor:   true,
		Prioridade: 10,
		Ativo:      true,
		MembroIDs:  []int64{membro.ID},
	}); err != nil {
		t.Fatal(err)
	}

	regras, err := repo.ListRegrasMembro(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(regras) != 1 {
		t.Fatalf("regras de membro = %d, want 1", len(regras))
	}
	r := regras[0]
	if !r.TemValor || !r.Valor.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("valor da regra = %s (tem=%v)", r.Valor, r.TemValor)
	}
	if len(r.MembroIDs) != 1 || r.MembroIDs[0] != membro.ID {
		t.Errorf("membros da regra = %v", r.MembroIDs)
	}
}

func TestMembrosDeTransacao(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	conta := contaDeTeste(t, repo)

	tx, err := repo.CreateTransacao(ctx, core.Transacao{
		ContaID: conta.ID, FitID: "M1", Data: dia(2025, 8, 1),
		Descricao: "mercado", Valor: decimal.RequireFromString("-50.00"),
	})
	if err != nil {
		t.Fatal(err)
	}

	sem, err := repo.ListTransacoesSemMembros(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sem) != 1 {
		t.Fatalf("sem membros = %d, want 1", len(sem))
	}

	membro, _ := repo.GetOrCreateMembro(ctx, "João")
	if err := repo.SetMembrosTransacao(ctx, tx.ID, []int64{membro.ID}); err != nil {
		t.Fatal(err)
	}

	ids, err := repo.GetMembrosTransacao(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != membro.ID {
		t.Errorf("membros = %v", ids)
	}

	if sem, _ = repo.ListTransacoesSemMembros(ctx, 0, 10); len(sem) != 0 {
		t.Errorf("após atribuição ainda há %d sem membros", len(sem))
	}
}

func TestResumoMensal(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	conta := contaDeTeste(t, repo)

	seed := []struct {
		fitid  string
		valor  string
		oculta bool
	}{
		{"R1", "5000.00", false},
		{"R2", "-1200.00", false},
		{"R3", "-300.00", false},
		{"R4", "-9999.00", true},
	}
	for i, s := range seed {
		_, err := repo.CreateTransacao(ctx, core.Transacao{
			ContaID: conta.ID, FitID: s.fitid, Data: dia(2025, 8, i+1),
			Descricao: "linha " + s.fitid, Valor: decimal.RequireFromString(s.valor), Oculta: s.oculta,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	resumo, err := repo.ResumoMensal(ctx, 2025, 8)
	if err != nil {
		t.Fatalf("ResumoMensal: %v", err)
	}
	if !resumo.Entradas.Equal(decimal.RequireFromString("5000.00")) {
		t.Errorf("entradas = %s", resumo.Entradas)
	}
	if !resumo.Saidas.Equal(decimal.RequireFromString("-1500.00")) {
		t.Errorf("saídas = %s", resumo.Saidas)
	}
	if !resumo.Total.Equal(decimal.RequireFromString("3500.00")) {
		t.Errorf("total = %s", resumo.Total)
	}
	if resumo.Contagem != 3 {
		t.Errorf("contagem = %d, want 3 (oculta fora)", resumo.Contagem)
	}
	if len(resumo.PorConta) != 1 || resumo.PorConta[0].Instituicao != "Banco do Brasil" {
		t.Errorf("por conta = %+v", resumo.PorConta)
	}
}
