package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "5511999990000", "phone_number_id": "1041"},
        "contacts": [{"profile": {"name": " Ana "}, "wa_id": "5511988887777"}],
        "messages": [
          {"from": "5511988887777", "id": "wamid.1", "timestamp": "1700000000", "type": "text", "text": {"body": "  Oi, quero pedir  "}},
          {"from": "5511988887777", "id": "wamid.2", "timestamp": "1700000001", "type": "interactive",
           "interactive": {"type": "list_reply", "list_reply": {"id": "CARDAPIO", "title": "Ver cardápio"}}},
          {"from": "5511988887777", "id": "wamid.3", "timestamp": "1700000002", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "SLOT_1", "title": "Seg 10:00"}}},
          {"from": "5511988887777", "id": "wamid.4", "timestamp": "1700000003", "type": "image"}
        ]
      }
    }]
  }, {
    "id": "WABA",
    "changes": [{"field": "messages", "value": {"metadata": {"phone_number_id": "1041"}, "statuses": []}}]
  }]
}`

func TestInbounds(t *testing.T) {
	p, err := ParsePayload([]byte(samplePayload))
	require.NoError(t, err)

	in := p.Inbounds()
	require.Len(t, in, 4)

	assert.Equal(t, "1041", in[0].PhoneNumberID)
	assert.Equal(t, "Ana", in[0].ContactName)
	assert.Equal(t, "Oi, quero pedir", in[0].Text)
	assert.Empty(t, in[0].SelectedID)
	assert.True(t, in[0].HasContent())

	assert.Equal(t, "CARDAPIO", in[1].SelectedID)
	assert.Equal(t, "Ver cardápio", in[1].Text)

	assert.Equal(t, "SLOT_1", in[2].SelectedID)
	assert.Equal(t, "wamid.3", in[2].MessageID)

	assert.Equal(t, "image", in[3].Type)
	assert.False(t, in[3].HasContent())
}

func TestParsePayload_Invalid(t *testing.T) {
	_, err := ParsePayload([]byte("{nope"))
	assert.Error(t, err)
}

func TestSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	header := Sign("s3cret", body)

	assert.True(t, ValidSignature("s3cret", body, header))
	assert.False(t, ValidSignature("otro", body, header))
	assert.False(t, ValidSignature("s3cret", []byte(`{}`), header))
	assert.False(t, ValidSignature("s3cret", body, ""))
	assert.False(t, ValidSignature("s3cret", body, "sha256=zz"))
	assert.False(t, ValidSignature("s3cret", body, "sha1=abcd"))
}

func TestNormalizeRecipient(t *testing.T) {
	assert.Equal(t, "5411558492828", NormalizeRecipient("dev", "+54911558492828"))
	assert.Equal(t, "549111", NormalizeRecipient("prod", "+549111"))
	assert.Equal(t, "5511988887777", NormalizeRecipient("dev", "5511988887777"))
}

type captured struct {
	path string
	auth string
	body map[string]any
}

func newTestServer(t *testing.T, status int, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got.body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SendText(t *testing.T) {
	var got captured
	srv := newTestServer(t, http.StatusOK, &got)

	c, err := NewClient(ClientConfig{Token: "tok", APIBase: srv.URL, Env: "prod"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, c.SendText(context.Background(), "1041", "+5511988887777", "Olá!"))
	assert.Equal(t, "/1041/messages", got.path)
	assert.Equal(t, "Bearer tok", got.auth)
	assert.Equal(t, "5511988887777", got.body["to"])
	assert.Equal(t, "text", got.body["type"])
	assert.Equal(t, "Olá!", got.body["text"].(map[string]any)["body"])
}

func TestClient_SendButtonsWithImageHeader(t *testing.T) {
	var got captured
	srv := newTestServer(t, http.StatusOK, &got)

	c, err := NewClient(ClientConfig{Token: "tok", APIBase: srv.URL, Env: "prod"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = c.SendButtons(context.Background(), "1041", "5511", "Título", "https://cdn/x.png", "Escolha", "rodapé",
		[]Button{{ID: "SIM", Title: "Sim"}, {ID: "NAO", Title: "Não"}})
	require.NoError(t, err)

	interactive := got.body["interactive"].(map[string]any)
	assert.Equal(t, "button", interactive["type"])
	header := interactive["header"].(map[string]any)
	assert.Equal(t, "image", header["type"])
	assert.Equal(t, "rodapé", interactive["footer"].(map[string]any)["text"])
	buttons := interactive["action"].(map[string]any)["buttons"].([]any)
	assert.Len(t, buttons, 2)
}

func TestClient_SendListAndForceTo(t *testing.T) {
	var got captured
	srv := newTestServer(t, http.StatusOK, &got)

	c, err := NewClient(ClientConfig{Token: "tok", APIBase: srv.URL, Env: "dev", ForceTo: "+5511000000000"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = c.SendList(context.Background(), "1041", "5511988887777", "Menu", "", "Escolha uma opção", "", "Ver opções",
		[]Section{{Title: "Pedidos", Rows: []Row{{ID: "CARDAPIO", Title: "Cardápio"}}}})
	require.NoError(t, err)

	assert.Equal(t, "5511000000000", got.body["to"])
	interactive := got.body["interactive"].(map[string]any)
	assert.Equal(t, "list", interactive["type"])
	assert.Equal(t, "text", interactive["header"].(map[string]any)["type"])
	_, hasFooter := interactive["footer"]
	assert.False(t, hasFooter)
}

func TestClient_NonOKStatus(t *testing.T) {
	var got captured
	srv := newTestServer(t, http.StatusBadRequest, &got)

	c, err := NewClient(ClientConfig{Token: "tok", APIBase: srv.URL, Env: "prod"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = c.SendText(context.Background(), "1041", "5511", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(ClientConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(zaptest.NewLogger(t))
	ctx := context.Background()
	assert.NoError(t, s.SendText(ctx, "1041", "5511", "oi"))
	assert.NoError(t, s.SendList(ctx, "1041", "5511", "h", "", "b", "", "Ver", []Section{{Title: "s", Rows: []Row{{ID: "1", Title: "a"}}}}))
	assert.NoError(t, s.SendButtons(ctx, "1041", "5511", "h", "", "b", "", []Button{{ID: "1", Title: "a"}}))
}
