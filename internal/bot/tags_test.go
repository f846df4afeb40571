package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTags(t *testing.T) {
	in := "Perfeito, Ana! Sua consulta está marcada.\n\n\n[AGENDAMENTO_CONFIRMADO: servico=Limpeza; data=2025-03-12; hora=14:30; nome=Ana Souza]\nAté lá [ou antes]!"

	text, tags := ExtractTags(in)
	assert.Equal(t, "Perfeito, Ana! Sua consulta está marcada.\n\nAté lá [ou antes]!", text)
	require.Len(t, tags, 1)
	assert.Equal(t, TagAppointment, tags[0].Name)
	assert.Equal(t, map[string]string{
		"servico": "Limpeza",
		"data":    "2025-03-12",
		"hora":    "14:30",
		"nome":    "Ana Souza",
	}, tags[0].Fields)
}

func TestExtractTags_UnknownBracketsStay(t *testing.T) {
	text, tags := ExtractTags("Use o código [PROMO_VERAO] no checkout.")
	assert.Equal(t, "Use o código [PROMO_VERAO] no checkout.", text)
	assert.Empty(t, tags)
}

func TestExtractTags_OnlyTag(t *testing.T) {
	text, tags := ExtractTags("[ATENDENTE_HUMANO]")
	assert.Empty(t, text)
	require.Len(t, tags, 1)
	assert.Equal(t, TagHuman, tags[0].Name)
	assert.Empty(t, tags[0].Fields)
}

func TestParseFields(t *testing.T) {
	assert.Equal(t, map[string]string{"itens": "1 pizza", "total": "45,00"},
		parseFields("Itens = 1 pizza; TOTAL=45,00;"))
	assert.Equal(t, map[string]string{"imovel": "Apto Centro", "data": "12/03"},
		parseFields("imóvel=Apto Centro, data=12/03"))
	assert.Equal(t, map[string]string{"servico": "Corte"},
		parseFields("serviço: Corte"))
	assert.Empty(t, parseFields("   "))
}

func TestParseDateTime(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		date, hour string
		want       time.Time
	}{
		{"2025-03-12", "14:30", time.Date(2025, 3, 12, 14, 30, 0, 0, loc)},
		{"12/03/2025", "9h", time.Date(2025, 3, 12, 9, 0, 0, 0, loc)},
		{"12/03", "14h30", time.Date(2025, 3, 12, 14, 30, 0, 0, loc)},
		{"12/03", "14hs", time.Date(2025, 3, 12, 14, 0, 0, 0, loc)},
		{"12/03", "16", time.Date(2025, 3, 12, 16, 0, 0, 0, loc)},
		// DD/MM que ya pasó este año es del año que viene.
		{"05/01", "10:00", time.Date(2026, 1, 5, 10, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		got, err := parseDateTime(tc.date, tc.hour, loc, testNow)
		require.NoError(t, err, "%s %s", tc.date, tc.hour)
		assert.Equal(t, tc.want, got, "%s %s", tc.date, tc.hour)
	}

	for _, bad := range [][2]string{{"", "10:00"}, {"amanhã", "10:00"}, {"2025-03-12", "25:00"}, {"2025-03-12", "tarde"}} {
		_, err := parseDateTime(bad[0], bad[1], loc, testNow)
		assert.Error(t, err, "%v", bad)
	}
}

func TestParseMoney(t *testing.T) {
	cases := map[string]float64{
		"R$ 1.234,50":  1234.5,
		"45,90":        45.9,
		"45.90":        45.9,
		"45":           45,
		"":             0,
		"R$ 1.234":     1234,
		"1.250":        1250,
		"R$ 2.500.000": 2500000,
		"r$ 45,90":     45.9,
		"R$45":         45,
	}
	for in, want := range cases {
		got, err := parseMoney(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 0.001, in)
	}
	_, err := parseMoney("quarenta")
	assert.Error(t, err)

	assert.Equal(t, "R$ 45,00", formatMoney(45))
	assert.Equal(t, "R$ 1234,50", formatMoney(1234.5))
}

func TestTagEffects(t *testing.T) {
	all := []string{TagAppointment, TagOrder, TagVisit, TagHuman}
	tags := []Tag{
		{Name: TagAppointment, Fields: map[string]string{"servico": "Limpeza", "data": "2025-03-12", "hora": "14:30", "nome": "Ana"}},
		{Name: TagOrder, Fields: map[string]string{"itens": "2x Margherita", "total": "R$ 90,00", "endereco": "Rua A, 10"}},
		{Name: TagVisit, Fields: map[string]string{"imovel": "Apto Centro", "data": "13/03", "hora": "10h"}},
		{Name: TagHuman, Fields: map[string]string{}},
	}

	eff, errs := tagEffects(tags, all, time.UTC, testNow)
	assert.Empty(t, errs)
	require.Len(t, eff.Appointments, 2)
	assert.Equal(t, "Limpeza", eff.Appointments[0].Service)
	assert.Equal(t, time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC), eff.Appointments[0].StartsAt)
	assert.Equal(t, "Visita: Apto Centro", eff.Appointments[1].Service)
	assert.Equal(t, time.Date(2025, 3, 13, 10, 0, 0, 0, time.UTC), eff.Appointments[1].StartsAt)
	require.Len(t, eff.Orders, 1)
	assert.InDelta(t, 90.0, eff.Orders[0].Total, 0.001)
	assert.Equal(t, "Rua A, 10", eff.Orders[0].Address)
	assert.True(t, eff.Handoff)
}

func TestTagEffects_NotAllowedAndMalformed(t *testing.T) {
	tags := []Tag{
		{Name: TagOrder, Fields: map[string]string{"itens": "1 pizza", "total": "45"}, Raw: "[PEDIDO_CONFIRMADO: ...]"},
		{Name: TagAppointment, Fields: map[string]string{"data": "amanhã", "hora": "10:00"}, Raw: "[AGENDAMENTO_CONFIRMADO: ...]"},
		{Name: TagAppointment, Fields: map[string]string{"data": "2025-03-12", "hora": "10:00"}, Raw: "[AGENDAMENTO_CONFIRMADO: ...]"},
	}

	eff, errs := tagEffects(tags, []string{TagAppointment}, time.UTC, testNow)
	assert.Len(t, errs, 2)
	assert.Empty(t, eff.Orders)
	require.Len(t, eff.Appointments, 1)
	assert.Equal(t, "Atendimento", eff.Appointments[0].Service)
}
