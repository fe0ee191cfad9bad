package core

import (
	"testing"
	"time"
)

func TestUltimosMeses(t *testing.T) {
	agora := time.Date(2026, time.February, 15, 10, 0, 0, 0, time.UTC)
	meses := UltimosMeses(agora, 12)

	if len(meses) != 12 {
		t.Fatalf("len = %d, want 12", len(meses))
	}
	if meses[0] != (MesReferencia{Ano: 2026, Mes: 2}) {
		t.Errorf("primeiro mês = %+v", meses[0])
	}
	// virada de ano
	if meses[2] != (MesReferencia{Ano: 2025, Mes: 12}) {
		t.Errorf("terceiro mês = %+v", meses[2])
	}
	if meses[11] != (MesReferencia{Ano: 2025, Mes: 3}) {
		t.Errorf("último mês = %+v", meses[11])
	}
}

func TestMesReferenciaLabel(t *testing.T) {
	m := MesReferencia{Ano: 2025, Mes: 3}
	if got := m.Label(); got != "Março/2025" {
		t.Errorf("Label = %q", got)
	}
	if (MesReferencia{}).Label() != "" {
		t.Error("mês inválido deveria ter label vazio")
	}
}

func TestCompetencia(t *testing.T) {
	fechado := time.Date(2025, time.August, 27, 0, 0, 0, 0, time.UTC)
	comp := Competencia(fechado)
	if comp.Day() != 1 || comp.Month() != time.August || comp.Year() != 2025 {
		t.Errorf("Competencia = %s", comp)
	}
}
