package store

import (
	"context"
	"errors"
	"time"

	"zytech/internal/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate")
)

// Store es todo lo que el dispatcher y la API admin necesitan del backend.
type Store interface {
	OrganizationByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Organization, error)
	Organization(ctx context.Context, id string) (*models.Organization, error)
	ListOrganizations(ctx context.Context) ([]models.Organization, error)

	// Conversation devuelve la conversación del contacto, creándola si no existe.
	Conversation(ctx context.Context, orgID, contactPhone string) (*models.Conversation, error)
	ConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	SetNeedsHuman(ctx context.Context, conversationID string, needsHuman bool) error
	ListConversations(ctx context.Context, orgID string, needsHumanOnly bool) ([]models.Conversation, error)

	// AppendMessage devuelve ErrDuplicate si el WAMessageID ya fue guardado.
	AppendMessage(ctx context.Context, msg *models.Message) error
	// RecentMessages devuelve los últimos limit mensajes, del más viejo al más nuevo.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	CreateAppointment(ctx context.Context, a *models.Appointment) error
	ListAppointments(ctx context.Context, orgID string) ([]models.Appointment, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	ListOrders(ctx context.Context, orgID string) ([]models.Order, error)
	ListProducts(ctx context.Context, orgID string, onlyAvailable bool) ([]models.Product, error)

	Usage(ctx context.Context, orgID string, since time.Time) (*models.Usage, error)

	Close()
}
