package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"financas/internal/amqp"
	"financas/internal/cli"
	"financas/internal/config"
	"financas/internal/services"
	"financas/internal/storage"
)

var (
	flagDryRun             bool
	flagReset              bool
	flagDir                string
	flagAgenciaPrioritaria string
	flagTitular            string
	flagReplace            bool
	flagForce              bool
)

type app struct {
	cfg       *config.Config
	repo      *storage.SQLiteRepository
	regras    *services.RegrasService
	publisher services.Publisher
	fechar    func()
}

// bootstrap abre configuração, banco e, se configurado, o broker.
func bootstrap() (*app, error) {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	cli.SetupLogger(cfg)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("abrir banco: %w", err)
	}

	a := &app{
		cfg:    cfg,
		repo:   repo,
		regras: services.NewRegrasService(repo),
		fechar: func() { repo.Close() },
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.Warn("Broker indisponível; regras serão aplicadas inline", "error", err)
		} else {
			a.publisher = client
			a.fechar = func() {
				client.Close()
				repo.Close()
			}
		}
	}
	return a, nil
}

// resolverPath aceita caminhos absolutos, relativos ao diretório atual ou
// relativos a DADOS_DIR.
func resolverPath(cfg *config.Config, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(cfg.DadosDir, path)
}

var rootCmd = &cobra.Command{
	Use:   "financasctl",
	Short: "Importações e manutenção do banco de finanças pessoais",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var importarOFXCmd = &cobra.Command{
	Use:   "importar-ofx <codigo-instituicao> <arquivo-ou-diretorio>",
	Short: "Importa extratos OFX de conta corrente",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.fechar()

		svc := services.NewImportOFXService(a.repo, a.regras, a.publisher)
		res, err := svc.Importar(cmd.Context(), args[0], resolverPath(a.cfg, args[1]), services.ImportOFXOptions{
			DryRun: flagDryRun,
			Reset:  flagReset,
		})
		if err != nil {
			return err
		}
		fmt.Println(res.String())
		return nil
	},
}

// fontesImportacao combina --dir com os arquivos posicionais; pelo menos uma
// origem precisa existir.
func fontesImportacao(dir string, args []string) ([]string, error) {
	var fontes []string
	if dir != "" {
		fontes = append(fontes, dir)
	}
	fontes = append(fontes, args...)
	if len(fontes) == 0 {
		return nil, fmt.Errorf("informe --dir ou ao menos um arquivo .ofx")
	}
	return fontes, nil
}

var importarSaldosCmd = &cobra.Command{
	Use:   "importar-saldos-ofx [arquivos...]",
	Short: "Importa apenas os saldos (LEDGERBAL) de arquivos OFX",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fontes, err := fontesImportacao(flagDir, args)
		if err != nil {
			return err
		}

		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.fechar()

		svc := services.NewImportSaldosService(a.repo)
		opts := services.ImportSaldosOptions{
			DryRun:             flagDryRun,
			AgenciaPrioritaria: flagAgenciaPrioritaria,
		}
		for _, fonte := range fontes {
			res, err := svc.Importar(cmd.Context(), resolverPath(a.cfg, fonte), opts)
			if err != nil {
				return err
			}
			fmt.Println(res.String())
			for _, aviso := range res.Avisos {
				fmt.Println("aviso:", aviso)
			}
		}
		return nil
	},
}

var importarPDFCmd = &cobra.Command{
	Use:   "importar-pdf-cartao-bb <arquivo-ou-diretorio>",
	Short: "Importa faturas de cartão do Banco do Brasil a partir de PDFs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.fechar()

		svc := services.NewImportPDFService(a.repo, a.regras, a.publisher)
		res, err := svc.Importar(cmd.Context(), resolverPath(a.cfg, args[0]), services.ImportPDFOptions{
			Titular: flagTitular,
			Replace: flagReplace,
			Force:   flagForce,
		})
		if err != nil {
			return err
		}
		fmt.Println(res.String())
		for _, aviso := range res.Avisos {
			fmt.Println("aviso:", aviso)
		}
		return nil
	},
}

var aplicarOcultacaoCmd = &cobra.Command{
	Use:   "aplicar-regras-ocultacao",
	Short: "Reaplica as regras de ocultação em todas as transações",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.fechar()

		alteradas, err := a.regras.AplicarOcultacao(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d transação(ões) alterada(s)\n", alteradas)
		return nil
	},
}

var aplicarMembroCmd = &cobra.Command{
	Use:   "aplicar-regras-membro",
	Short: "Atribui membros às transações e lançamentos ainda sem membro",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.fechar()

		atribuidas, err := a.regras.AplicarMembros(cmd.Context(), a.cfg.RegrasBatchSize)
		if err != nil {
			return err
		}
		atribuidos, err := a.regras.AplicarMembrosLancamentos(cmd.Context(), a.cfg.RegrasBatchSize)
		if err != nil {
			return err
		}
		fmt.Printf("%d transação(ões) e %d lançamento(s) com membros atribuídos\n", atribuidas, atribuidos)
		return nil
	},
}

func init() {
	importarOFXCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "não grava nada, só contabiliza")
	importarOFXCmd.Flags().BoolVar(&flagReset, "reset", false, "apaga as transações da conta antes de importar")

	importarSaldosCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "não grava nada, só contabiliza")
	importarSaldosCmd.Flags().StringVar(&flagDir, "dir", "", "diretório varrido recursivamente por arquivos .ofx")
	importarSaldosCmd.Flags().StringVar(&flagAgenciaPrioritaria, "agencia-prioritaria", "", "agência usada para desempatar contas de mesmo número")

	importarPDFCmd.Flags().StringVar(&flagTitular, "titular", "", "titular gravado no cartão criado nesta importação")
	importarPDFCmd.Flags().BoolVar(&flagReplace, "replace", false, "reimporta os lançamentos de faturas já existentes")
	importarPDFCmd.Flags().BoolVar(&flagForce, "force", false, "apaga a fatura existente antes de importar")

	rootCmd.AddCommand(importarOFXCmd)
	rootCmd.AddCommand(importarSaldosCmd)
	rootCmd.AddCommand(importarPDFCmd)
	rootCmd.AddCommand(aplicarOcultacaoCmd)
	rootCmd.AddCommand(aplicarMembroCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "erro:", err)
		os.Exit(1)
	}
}
