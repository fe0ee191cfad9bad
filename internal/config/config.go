package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	AmbienteDev  = "dev"
	AmbienteProd = "prod"
)

type Config struct {
	// Ambiente de execução: dev ou prod
	Ambiente string

	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Diretório com OFX/PDF para importação
	DadosDir string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker de regras
	RegrasBatchSize int
	RegrasInterval  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Ambiente: getEnv("AMBIENTE", AmbienteDev),

		Port:         getEnv("PORT", "8000"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/financas.db"),
		DadosDir:     getEnv("DADOS_DIR", "./dados"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "financas"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "aplicar_regras"),

		RegrasBatchSize: getEnvInt("REGRAS_BATCH_SIZE", 200),
		RegrasInterval:  getEnvDuration("REGRAS_INTERVAL", 30*time.Second),
	}

	return cfg
}

// Dev reporta se o ambiente é de desenvolvimento. Em dev o servidor loga em
// nível debug e aceita qualquer Host; em prod ambos são restritos.
func (c *Config) Dev() bool {
	return c.Ambiente != AmbienteProd
}

// Validate valida a configuração acumulando todos os problemas encontrados.
func (c *Config) Validate() error {
	var errors []string

	if c.Ambiente != AmbienteDev && c.Ambiente != AmbienteProd {
		errors = append(errors, fmt.Sprintf("AMBIENTE inválido '%s': deve ser 'dev' ou 'prod'", c.Ambiente))
	}

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("porta inválida '%s': deve ser um número", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("porta inválida %d: deve estar entre 1 e 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLITE_DB_PATH não pode ser vazio")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("não foi possível criar o diretório do banco '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("AMQP_URL inválida '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("esquema inválido na AMQP_URL '%s': deve ser 'amqp' ou 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP_EXCHANGE não pode ser vazio quando AMQP_URL está definida")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP_QUEUE não pode ser vazio quando AMQP_URL está definida")
		}
	}

	if c.RegrasBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("REGRAS_BATCH_SIZE inválido %d: deve ser ao menos 1", c.RegrasBatchSize))
	} else if c.RegrasBatchSize > 10000 {
		errors = append(errors, fmt.Sprintf("REGRAS_BATCH_SIZE inválido %d: deve ser no máximo 10000", c.RegrasBatchSize))
	}

	if c.RegrasInterval < time.Second {
		errors = append(errors, fmt.Sprintf("REGRAS_INTERVAL inválido %v: deve ser ao menos 1 segundo", c.RegrasInterval))
	} else if c.RegrasInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("REGRAS_INTERVAL inválido %v: deve ser no máximo 24 horas", c.RegrasInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuração inválida:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
