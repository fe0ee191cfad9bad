package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"financas/internal/core"
	"financas/internal/storage"
)

const consultaTimeout = 7 * time.Second

// parseMesAno lê mes/ano da query; ausentes ou inválidos caem no mês atual.
func parseMesAno(r *http.Request) (int, int) {
	agora := time.Now()
	ano, mes := agora.Year(), int(agora.Month())

	if v, err := strconv.Atoi(r.URL.Query().Get("ano")); err == nil && v >= 2000 {
		ano = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("mes")); err == nil && v >= 1 && v <= 12 {
		mes = v
	}
	return ano, mes
}

func parseID(r *http.Request, param string) int64 {
	id, err := strconv.ParseInt(r.URL.Query().Get(param), 10, 64)
	if err != nil || id < 1 {
		return 0
	}
	return id
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, nome string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates não carregados", "url", r.URL.Path)
		http.Error(w, "templates não carregados", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, nome, data); err != nil {
		slog.ErrorContext(r.Context(), "Falha ao renderizar template", "template", nome, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	agora := time.Now()
	data := struct {
		Meses []core.MesReferencia
		Atual core.MesReferencia
	}{
		Meses: core.UltimosMeses(agora, 12),
		Atual: core.MesReferencia{Ano: agora.Year(), Mes: int(agora.Month())},
	}
	s.render(w, r, "index.html", data)
}

type linhaTransacao struct {
	Data      string
	Descricao string
	Valor     string
	Negativo  bool
	Oculta    bool
}

func (s *Server) handleTransacoes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := contextComTimeout(r)
	defer cancel()

	ano, mes := parseMesAno(r)
	ord := r.URL.Query().Get("ord")
	switch ord {
	case storage.OrdMaisNovo, storage.OrdMaisVelho, storage.OrdMaiorValor, storage.OrdMenorValor:
	default:
		ord = storage.OrdMaisNovo
	}

	filtro := storage.TransacaoFilter{
		Ano:            ano,
		Mes:            mes,
		ContaID:        parseID(r, "conta"),
		Busca:          r.URL.Query().Get("q"),
		Ordenacao:      ord,
		IncluirOcultas: r.URL.Query().Get("ocultas") == "1",
	}

	transacoes, err := s.repo.ListTransacoes(ctx, filtro)
	if err != nil {
		slog.ErrorContext(ctx, "Falha ao listar transações", "error", err)
		http.Error(w, "erro ao listar transações", http.StatusInternalServerError)
		return
	}

	contas, err := s.repo.ListContas(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Falha ao listar contas", "error", err)
		http.Error(w, "erro ao listar contas", http.StatusInternalServerError)
		return
	}

	linhas := make([]linhaTransacao, 0, len(transacoes))
	for _, t := range transacoes {
		linhas = append(linhas, linhaTransacao{
			Data:      t.Data.Format("02/01/2006"),
			Descricao: t.Descricao,
			Valor:     core.FormatBRL(t.Valor),
			Negativo:  t.Valor.IsNegative(),
			Oculta:    t.Oculta,
		})
	}

	data := struct {
		Mes        core.MesReferencia
		Meses      []core.MesReferencia
		Contas     []core.Conta
		ContaID    int64
		Busca      string
		Ordenacao  string
		Ocultas    bool
		Transacoes []linhaTransacao
	}{
		Mes:        core.MesReferencia{Ano: ano, Mes: mes},
		Meses:      core.UltimosMeses(time.Now(), 12),
		Contas:     contas,
		ContaID:    filtro.ContaID,
		Busca:      filtro.Busca,
		Ordenacao:  ord,
		Ocultas:    filtro.IncluirOcultas,
		Transacoes: linhas,
	}
	s.render(w, r, "transacoes.html", data)
}

type linhaLancamento struct {
	Data      string
	Descricao string
	Secao     string
	Parcela   string
	Valor     string
	Fatura    string
}

func (s *Server) handleLancamentos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := contextComTimeout(r)
	defer cancel()

	ano, mes := parseMesAno(r)
	filtro := storage.LancamentoFilter{
		Ano:      ano,
		Mes:      mes,
		CartaoID: parseID(r, "cartao"),
	}

	lancamentos, err := s.repo.ListLancamentos(ctx, filtro)
	if err != nil {
		slog.ErrorContext(ctx, "Falha ao listar lançamentos", "error", err)
		http.Error(w, "erro ao listar lançamentos", http.StatusInternalServerError)
		return
	}

	cartoes, err := s.repo.ListCartoes(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Falha ao listar cartões", "error", err)
		http.Error(w, "erro ao listar cartões", http.StatusInternalServerError)
		return
	}

	linhas := make([]linhaLancamento, 0, len(lancamentos))
	for _, l := range lancamentos {
		linhas = append(linhas, linhaLancamento{
			Data:      l.Data.Format("02/01/2006"),
			Descricao: l.Descricao,
			Secao:     l.Secao,
			Parcela:   l.EtiquetaParcela,
			Valor:     core.FormatBRL(l.Valor),
			Fatura:    l.FaturaLabel(),
		})
	}

	data := struct {
		Mes         core.MesReferencia
		Meses       []core.MesReferencia
		Cartoes     []core.Cartao
		CartaoID    int64
		Lancamentos []linhaLancamento
	}{
		Mes:         core.MesReferencia{Ano: ano, Mes: mes},
		Meses:       core.UltimosMeses(time.Now(), 12),
		Cartoes:     cartoes,
		CartaoID:    filtro.CartaoID,
		Lancamentos: linhas,
	}
	s.render(w, r, "lancamentos.html", data)
}

type linhaFatura struct {
	Cartao      string
	Competencia string
	FechadoEm   string
	Vencimento  string
	Total       string
	Soma        string
	Lancamentos int
	Fonte       string
}

func (s *Server) handleFaturas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := contextComTimeout(r)
	defer cancel()

	faturas, err := s.repo.ListFaturas(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Falha ao listar faturas", "error", err)
		http.Error(w, "erro ao listar faturas", http.StatusInternalServerError)
		return
	}

	linhas := make([]linhaFatura, 0, len(faturas))
	for _, f := range faturas {
		total := "sem total"
		if f.TemTotal {
			total = core.FormatBRL(f.Total)
		}
		linhas = append(linhas, linhaFatura{
			Cartao:      fmt.Sprintf("%s final %s", f.Bandeira, f.CartaoFinal),
			Competencia: f.Competencia.Format("01/2006"),
			FechadoEm:   f.FechadoEm.Format("02/01/2006"),
			Vencimento:  f.VencimentoEm.Format("02/01/2006"),
			Total:       total,
			Soma:        core.FormatBRL(core.FromCents(f.SomaCents)),
			Lancamentos: f.Lancamentos,
			Fonte:       f.FonteArquivo,
		})
	}

	s.render(w, r, "faturas.html", struct{ Faturas []linhaFatura }{linhas})
}

type linhaResumo struct {
	Label string
	Valor string
}

func (s *Server) handleResumoMensal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := contextComTimeout(r)
	defer cancel()

	ano, mes := parseMesAno(r)
	chave := fmt.Sprintf("%04d-%02d", ano, mes)

	resumo, ok := s.resumoCache.Get(chave)
	if !ok {
		var err error
		resumo, err = s.repo.ResumoMensal(ctx, ano, mes)
		if err != nil {
			slog.ErrorContext(ctx, "Falha ao montar o resumo mensal", "error", err, "ano", ano, "mes", mes)
			http.Error(w, "erro ao montar o resumo", http.StatusInternalServerError)
			return
		}
		s.resumoCache.Set(chave, resumo)
	}

	porConta := make([]linhaResumo, 0, len(resumo.PorConta))
	for _, c := range resumo.PorConta {
		porConta = append(porConta, linhaResumo{
			Label: fmt.Sprintf("%s %s", c.Instituicao, c.Numero),
			Valor: core.FormatBRL(c.Valor),
		})
	}
	porCartao := make([]linhaResumo, 0, len(resumo.PorCartao))
	for _, c := range resumo.PorCartao {
		porCartao = append(porCartao, linhaResumo{
			Label: fmt.Sprintf("%s final %s", c.Bandeira, c.CartaoFinal),
			Valor: core.FormatBRL(c.Valor),
		})
	}

	data := struct {
		Label         string
		Entradas      string
		Saidas        string
		Total         string
		TotalNegativo bool
		Contagem      int
		PorConta      []linhaResumo
		PorCartao     []linhaResumo
	}{
		Label:         core.MesReferencia{Ano: resumo.Ano, Mes: resumo.Mes}.Label(),
		Entradas:      core.FormatBRL(resumo.Entradas),
		Saidas:        core.FormatBRL(resumo.Saidas),
		Total:         core.FormatBRL(resumo.Total),
		TotalNegativo: resumo.Total.IsNegative(),
		Contagem:      resumo.Contagem,
		PorConta:      porConta,
		PorCartao:     porCartao,
	}
	s.render(w, r, "resumo_mensal.html", data)
}

func contextComTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), consultaTimeout)
}
