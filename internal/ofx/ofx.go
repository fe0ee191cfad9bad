// Package ofx reads the OFX files exported by Brazilian banks.
//
// Bank OFX is usually 1.x SGML (tags without closing pairs, Latin-1 bytes)
// and occasionally 2.x XML. Strict parsers reject both often enough that the
// extraction here is regex-based over normalized text, which handles the two
// variants uniformly.
package ofx

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transacao é um STMTTRN já decodificado.
type Transacao struct {
	FitID    string
	Data     time.Time
	TemData  bool
	Valor    decimal.Decimal
	Nome     string
	Memo     string
	CheckNum string
	Tipo     string
}

// SaldoLedger é o LEDGERBAL de um extrato (saldo contábil do dia).
type SaldoLedger struct {
	Valor decimal.Decimal
	Data  time.Time
}

// Extrato é um bloco STMTRS: uma conta com seus movimentos e saldo.
type Extrato struct {
	BankID     string
	Agencia    string
	Conta      string
	Transacoes []Transacao
	Saldo      *SaldoLedger
}

// Documento é o conteúdo de um arquivo OFX.
type Documento struct {
	Extratos []Extrato
}
