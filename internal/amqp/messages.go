package amqp

import (
	"encoding/json"
	"time"
)

// Origem dos eventos de regras pendentes.
const (
	OrigemImportOFX = "importar-ofx"
	OrigemImportPDF = "importar-pdf-cartao-bb"
	OrigemManual    = "manual"
)

// RegrasPendentesMessage avisa o worker que uma conta recebeu transações
// novas e precisa passar pelas regras de ocultação e de membro. Carrega só o
// id da conta; o worker busca as transações no banco.
type RegrasPendentesMessage struct {
	ContaID   int64     `json:"conta_id"`
	Origem    string    `json:"origem"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRegrasPendentesMessage(contaID int64, origem string) *RegrasPendentesMessage {
	return &RegrasPendentesMessage{
		ContaID:   contaID,
		Origem:    origem,
		Timestamp: time.Now(),
	}
}

func (m *RegrasPendentesMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RegrasPendentesMessageFromJSON(data []byte) (*RegrasPendentesMessage, error) {
	var msg RegrasPendentesMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
