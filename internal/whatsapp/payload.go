package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"
)

type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []IncomingMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type IncomingMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`

	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`

	// Botones de templates (quick replies) llegan como type=button.
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
}

// Inbound es un mensaje entrante ya aplanado: todo lo que el dispatcher necesita
// sin tener que recorrer entry/changes/value.
type Inbound struct {
	PhoneNumberID string
	From          string
	ContactName   string
	MessageID     string
	Type          string
	// Text es el cuerpo del mensaje, o el título de la opción elegida si fue interactivo.
	Text string
	// SelectedID es el id de la fila/botón elegido; vacío para texto libre.
	SelectedID string
}

func ParsePayload(raw []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("payload inválido: %w", err)
	}
	return &payload, nil
}

// Inbounds aplana el payload. Los cambios sin mensajes (statuses, etc.) se ignoran.
func (p *WebhookPayload) Inbounds() []Inbound {
	var out []Inbound
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			if len(ch.Value.Messages) == 0 {
				continue
			}
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = strings.TrimSpace(c.Profile.Name)
			}
			for _, msg := range ch.Value.Messages {
				in := Inbound{
					PhoneNumberID: ch.Value.Metadata.PhoneNumberID,
					From:          msg.From,
					ContactName:   names[msg.From],
					MessageID:     msg.ID,
					Type:          msg.Type,
				}
				// Si el wa_id del contacto no coincide con el from, usamos el primero.
				if in.ContactName == "" && len(ch.Value.Contacts) > 0 {
					in.ContactName = strings.TrimSpace(ch.Value.Contacts[0].Profile.Name)
				}
				fillContent(&in, msg)
				out = append(out, in)
			}
		}
	}
	return out
}

func fillContent(in *Inbound, msg IncomingMessage) {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			in.Text = strings.TrimSpace(msg.Text.Body)
		}
	case "interactive":
		if msg.Interactive == nil {
			return
		}
		if r := msg.Interactive.ListReply; r != nil {
			in.SelectedID = r.ID
			in.Text = r.Title
		} else if r := msg.Interactive.ButtonReply; r != nil {
			in.SelectedID = r.ID
			in.Text = r.Title
		}
	case "button":
		if msg.Button != nil {
			in.SelectedID = msg.Button.Payload
			in.Text = msg.Button.Text
		}
	}
}

// HasContent indica si hay algo que un bot pueda procesar (texto o selección).
func (in Inbound) HasContent() bool {
	return in.Text != "" || in.SelectedID != ""
}
