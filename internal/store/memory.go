package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"zytech/internal/models"
)

// Memory es un Store en memoria para dev y tests. No persiste nada.
type Memory struct {
	mu            sync.RWMutex
	orgs          map[string]models.Organization
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
	waIDs         map[string]struct{}
	appointments  []models.Appointment
	orders        []models.Order
	products      []models.Product
	now           func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orgs:          make(map[string]models.Organization),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
		waIDs:         make(map[string]struct{}),
		now:           time.Now,
	}
}

// PutOrganization agrega o reemplaza una organización (seed de dev/tests).
func (m *Memory) PutOrganization(org models.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = m.now()
	}
	m.orgs[org.ID] = org
}

func (m *Memory) PutProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.products = append(m.products, p)
}

func (m *Memory) OrganizationByPhoneNumberID(_ context.Context, phoneNumberID string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orgs {
		if o.PhoneNumberID == phoneNumberID {
			org := o
			return &org, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Organization(_ context.Context, id string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *Memory) ListOrganizations(_ context.Context) ([]models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Conversation(_ context.Context, orgID, contactPhone string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.OrganizationID == orgID && c.ContactPhone == contactPhone {
			conv := copyConversation(c)
			return &conv, nil
		}
	}
	now := m.now()
	c := models.Conversation{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		ContactPhone:   contactPhone,
		State:          models.DefaultState,
		Data:           make(map[string]string),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.conversations[c.ID] = c
	conv := copyConversation(c)
	return &conv, nil
}

func (m *Memory) ConversationByID(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	conv := copyConversation(c)
	return &conv, nil
}

func (m *Memory) SaveConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conv.ID]; !ok {
		return ErrNotFound
	}
	conv.UpdatedAt = m.now()
	m.conversations[conv.ID] = copyConversation(*conv)
	return nil
}

func (m *Memory) SetNeedsHuman(_ context.Context, conversationID string, needsHuman bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.NeedsHuman = needsHuman
	c.UpdatedAt = m.now()
	m.conversations[conversationID] = c
	return nil
}

func (m *Memory) ListConversations(_ context.Context, orgID string, needsHumanOnly bool) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Conversation
	for _, c := range m.conversations {
		if c.OrganizationID != orgID || (needsHumanOnly && !c.NeedsHuman) {
			continue
		}
		out = append(out, copyConversation(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.WAMessageID != "" {
		if _, seen := m.waIDs[msg.WAMessageID]; seen {
			return ErrDuplicate
		}
		m.waIDs[msg.WAMessageID] = struct{}{}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

func (m *Memory) RecentMessages(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.Message, len(all))
	copy(out, all)
	return out, nil
}

func (m *Memory) CreateAppointment(_ context.Context, a *models.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusConfirmed
	}
	a.CreatedAt = m.now()
	m.appointments = append(m.appointments, *a)
	return nil
}

func (m *Memory) ListAppointments(_ context.Context, orgID string) ([]models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Appointment
	for _, a := range m.appointments {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *Memory) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.StatusPending
	}
	o.CreatedAt = m.now()
	m.orders = append(m.orders, *o)
	return nil
}

func (m *Memory) ListOrders(_ context.Context, orgID string) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.OrganizationID == orgID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListProducts(_ context.Context, orgID string, onlyAvailable bool) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Product
	for _, p := range m.products {
		if p.OrganizationID != orgID || (onlyAvailable && !p.Available) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Usage(_ context.Context, orgID string, since time.Time) (*models.Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.orgs[orgID]; !ok {
		return nil, ErrNotFound
	}
	u := &models.Usage{OrganizationID: orgID, Since: since}
	for _, c := range m.conversations {
		if c.OrganizationID != orgID {
			continue
		}
		if c.NeedsHuman {
			u.HandoffsOpen++
		}
		for _, msg := range m.messages[c.ID] {
			if msg.CreatedAt.Before(since) {
				continue
			}
			switch msg.Role {
			case models.RoleUser:
				u.InboundMessages++
			case models.RoleAssistant:
				u.OutboundMessages++
			}
			u.TokensUsed += msg.Tokens
		}
	}
	for _, a := range m.appointments {
		if a.OrganizationID == orgID && !a.CreatedAt.Before(since) {
			u.Appointments++
		}
	}
	for _, o := range m.orders {
		if o.OrganizationID == orgID && !o.CreatedAt.Before(since) {
			u.Orders++
		}
	}
	return u, nil
}

func (m *Memory) Close() {}

func copyConversation(c models.Conversation) models.Conversation {
	data := make(map[string]string, len(c.Data))
	for k, v := range c.Data {
		data[k] = v
	}
	c.Data = data
	return c
}
