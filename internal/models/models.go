package models

import "time"

// Vertical es el rubro del negocio; define qué templates tienen sentido.
type Vertical string

const (
	VerticalCommerce   Vertical = "commerce"
	VerticalDelivery   Vertical = "delivery"
	VerticalScheduling Vertical = "scheduling"
	VerticalRealEstate Vertical = "real_estate"
)

func (v Vertical) Valid() bool {
	switch v {
	case VerticalCommerce, VerticalDelivery, VerticalScheduling, VerticalRealEstate:
		return true
	}
	return false
}

// Organization es el tenant: un negocio con un número de WhatsApp conectado.
type Organization struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Vertical      Vertical  `json:"vertical"`
	BotTemplate   string    `json:"bot_template"`
	PhoneNumberID string    `json:"phone_number_id"`
	Active        bool      `json:"active"`
	CalendarID    string    `json:"calendar_id,omitempty"`
	Address       string    `json:"address,omitempty"`
	BusinessHours string    `json:"business_hours,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

const DefaultState = "MENU"

// Conversation agrupa los mensajes de un contacto con una organización.
// State y Data sólo los usan los bots de menú.
type Conversation struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	ContactPhone   string            `json:"contact_phone"`
	ContactName    string            `json:"contact_name"`
	State          string            `json:"state"`
	NeedsHuman     bool              `json:"needs_human"`
	Data           map[string]string `json:"data,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	OrganizationID string    `json:"organization_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	WAMessageID    string    `json:"wa_message_id,omitempty"`
	Tokens         int       `json:"tokens,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

type Appointment struct {
	ID              string    `json:"id"`
	OrganizationID  string    `json:"organization_id"`
	ConversationID  string    `json:"conversation_id"`
	ContactName     string    `json:"contact_name"`
	ContactPhone    string    `json:"contact_phone"`
	Service         string    `json:"service"`
	StartsAt        time.Time `json:"starts_at"`
	Status          string    `json:"status"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Order struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ConversationID string    `json:"conversation_id"`
	ContactName    string    `json:"contact_name"`
	ContactPhone   string    `json:"contact_phone"`
	Items          string    `json:"items"`
	Total          float64   `json:"total"`
	Address        string    `json:"address,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type Product struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Price          float64 `json:"price"`
	Available      bool    `json:"available"`
}

// Usage resume la actividad de una organización para la consola admin.
type Usage struct {
	OrganizationID   string    `json:"organization_id"`
	Since            time.Time `json:"since"`
	InboundMessages  int       `json:"inbound_messages"`
	OutboundMessages int       `json:"outbound_messages"`
	Appointments     int       `json:"appointments"`
	Orders           int       `json:"orders"`
	HandoffsOpen     int       `json:"handoffs_open"`
	TokensUsed       int       `json:"tokens_used"`
}
