package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zytech/internal/calendar"
	"zytech/internal/llm"
	"zytech/internal/models"
	"zytech/internal/store"
	"zytech/internal/whatsapp"
)

// Lunes 10/03/2025 08:00 UTC.
var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

const deliveryMenuYAML = `
name: delivery_menu
kind: menu
vertical: delivery
states:
  MENU:
    type: interactive_list
    body: "Olá {{name}}! Bem-vindo à {{org_name}}."
    list:
      header: "Atendimento"
      button_text: "Ver opções"
      sections:
        - title: "Opções"
          rows:
            - id: OPT_CARDAPIO
              title: "Cardápio"
            - id: OPT_PEDIDO
              title: "Fazer pedido"
            - id: OPT_AGENDA
              title: "Reservar mesa"
            - id: OPT_HUMANO
              title: "Falar com atendente"
    on_select_next:
      OPT_CARDAPIO: CARDAPIO
      OPT_PEDIDO: PEDIDO
      OPT_AGENDA: AGENDA
      OPT_HUMANO: HUMANO
    keywords:
      cardapio: CARDAPIO
      pedido: PEDIDO
      status do pedido: STATUS
      reservar: AGENDA
      atendente: HUMANO
  CARDAPIO:
    type: text
    action: list_catalog
    body: "Nosso cardápio:\n{{catalog}}"
  STATUS:
    type: text
    body: "Seu pedido está a caminho."
  PEDIDO:
    type: text
    body: "O que você quer pedir?"
    capture_as: cart
    on_text_next: ENDERECO
  ENDERECO:
    type: text
    body: "Qual o endereço de entrega?"
    capture_as: address
    on_text_next: CONFIRMA
  CONFIRMA:
    type: text
    action: create_order
    on_error_next: MENU
    body: "Pedido: {{order_items}}. Total: {{order_total}}."
  AGENDA:
    type: interactive_buttons
    action: get_calendar_slots
    on_error_next: ERRO_AGENDA
    body: "Escolha um horário:"
    buttons:
      buttons:
        - id: SLOT_1
          title: "{{slot_1}}"
        - id: SLOT_2
          title: "{{slot_2}}"
        - id: SLOT_3
          title: "{{slot_3}}"
    on_select_next:
      SLOT_1: CONFIRMADO
      SLOT_2: CONFIRMADO
      SLOT_3: CONFIRMADO
  CONFIRMADO:
    type: text
    action: schedule_appointment
    on_error_next: ERRO_AGENDA
    body: "Reserva confirmada para {{appointment_time}}."
  ERRO_AGENDA:
    type: text
    body: "Esse horário não está mais disponível."
    on_text_next: AGENDA
  HUMANO:
    type: text
    handoff: true
    body: "Um atendente vai falar com você."
`

const realEstateLLMYAML = `
name: real_estate_llm
kind: llm
vertical: real_estate
system_prompt: "Você é o corretor virtual da imobiliária."
temperature: 0.4
include_catalog: true
allowed_tags: [VISITA_AGENDADA, ATENDENTE_HUMANO]
fallback: "Pode repetir?"
`

func mustTemplate(t *testing.T, name, src string) *Template {
	t.Helper()
	tmpl, err := ParseTemplate(name, []byte(src))
	require.NoError(t, err)
	return tmpl
}

func seedStore(t *testing.T) (*store.Memory, *models.Organization) {
	t.Helper()
	mem := store.NewMemory()
	org := models.Organization{
		ID:            "org-bella",
		Name:          "Pizzaria Bella",
		Vertical:      models.VerticalDelivery,
		BotTemplate:   "delivery_menu",
		PhoneNumberID: "1041",
		Active:        true,
		Address:       "Rua das Flores, 100",
		BusinessHours: "18h às 23h",
	}
	mem.PutOrganization(org)
	mem.PutProduct(models.Product{OrganizationID: org.ID, Name: "Margherita", Price: 45, Available: true})
	mem.PutProduct(models.Product{OrganizationID: org.ID, Name: "Calabresa", Price: 40, Available: true})
	mem.PutProduct(models.Product{OrganizationID: org.ID, Name: "Portuguesa", Price: 50, Available: false})
	return mem, &org
}

// ---------------------
// Fakes
// ---------------------

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.reply, Tokens: 42}, nil
}

type sentMsg struct {
	Kind          string
	PhoneNumberID string
	To            string
	Body          string
	Buttons       []whatsapp.Button
	Sections      []whatsapp.Section
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (f *fakeSender) SendText(_ context.Context, phoneNumberID, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{Kind: "text", PhoneNumberID: phoneNumberID, To: to, Body: body})
	return f.err
}

func (f *fakeSender) SendList(_ context.Context, phoneNumberID, to, _, _, body, _, _ string, sections []whatsapp.Section) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{Kind: "list", PhoneNumberID: phoneNumberID, To: to, Body: body, Sections: sections})
	return f.err
}

func (f *fakeSender) SendButtons(_ context.Context, phoneNumberID, to, _, _, body, _ string, buttons []whatsapp.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{Kind: "buttons", PhoneNumberID: phoneNumberID, To: to, Body: body, Buttons: buttons})
	return f.err
}

func (f *fakeSender) all() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMsg, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeScheduler struct {
	mu     sync.Mutex
	slots  []calendar.Slot
	events []time.Time
	err    error
}

func (f *fakeScheduler) NextAvailableSlots(_ context.Context, _ string) ([]calendar.Slot, error) {
	return f.slots, f.err
}

func (f *fakeScheduler) CreateEvent(_ context.Context, _ string, start time.Time, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, start)
	return "evt-1", nil
}
