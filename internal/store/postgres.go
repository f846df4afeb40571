package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"zytech/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implementa Store sobre el Postgres hosteado.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("no pude crear pool postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres no responde: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Migrate aplica schema.sql. Todas las sentencias son idempotentes.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("error aplicando schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }

// Los ids son UUID en la base. Un id con otro formato no existe, igual que en
// el store en memoria, y no tiene que llegar a Postgres como error de sintaxis.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const orgColumns = `id, name, vertical, bot_template, phone_number_id, active, calendar_id, address, business_hours, created_at`

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Vertical, &o.BotTemplate, &o.PhoneNumberID, &o.Active,
		&o.CalendarID, &o.Address, &o.BusinessHours, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (p *Postgres) OrganizationByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Organization, error) {
	return scanOrganization(p.pool.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE phone_number_id = $1`, phoneNumberID))
}

func (p *Postgres) Organization(ctx context.Context, id string) (*models.Organization, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanOrganization(p.pool.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

func (p *Postgres) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const convColumns = `id, organization_id, contact_phone, contact_name, state, needs_human, data, created_at, updated_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(&c.ID, &c.OrganizationID, &c.ContactPhone, &c.ContactName, &c.State,
		&c.NeedsHuman, &c.Data, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Data == nil {
		c.Data = make(map[string]string)
	}
	return &c, nil
}

func (p *Postgres) Conversation(ctx context.Context, orgID, contactPhone string) (*models.Conversation, error) {
	if !validID(orgID) {
		return nil, ErrNotFound
	}
	// El DO UPDATE no cambia nada, sólo hace que RETURNING devuelva la fila existente.
	return scanConversation(p.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, organization_id, contact_phone, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, contact_phone)
		DO UPDATE SET organization_id = EXCLUDED.organization_id
		RETURNING `+convColumns,
		uuid.NewString(), orgID, contactPhone, models.DefaultState))
}

func (p *Postgres) ConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanConversation(p.pool.QueryRow(ctx,
		`SELECT `+convColumns+` FROM conversations WHERE id = $1`, id))
}

func (p *Postgres) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	if !validID(conv.ID) {
		return ErrNotFound
	}
	if conv.Data == nil {
		conv.Data = make(map[string]string)
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE conversations
		SET contact_name = $2, state = $3, needs_human = $4, data = $5, updated_at = now()
		WHERE id = $1`,
		conv.ID, conv.ContactName, conv.State, conv.NeedsHuman, conv.Data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetNeedsHuman(ctx context.Context, conversationID string, needsHuman bool) error {
	if !validID(conversationID) {
		return ErrNotFound
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE conversations SET needs_human = $2, updated_at = now() WHERE id = $1`,
		conversationID, needsHuman)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListConversations(ctx context.Context, orgID string, needsHumanOnly bool) ([]models.Conversation, error) {
	if !validID(orgID) {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+convColumns+` FROM conversations
		WHERE organization_id = $1 AND ($2 = FALSE OR needs_human)
		ORDER BY updated_at DESC`, orgID, needsHumanOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var waID *string
	if msg.WAMessageID != "" {
		waID = &msg.WAMessageID
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, organization_id, role, content, wa_message_id, tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.OrganizationID, msg.Role, msg.Content, waID, msg.Tokens,
	).Scan(&msg.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if !validID(conversationID) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, conversation_id, organization_id, role, content, COALESCE(wa_message_id, ''), tokens, created_at
		FROM (
			SELECT * FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent
		ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.OrganizationID, &m.Role, &m.Content,
			&m.WAMessageID, &m.Tokens, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusConfirmed
	}
	return p.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, organization_id, conversation_id, contact_name, contact_phone, service, starts_at, status, calendar_event_id)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		a.ID, a.OrganizationID, a.ConversationID, a.ContactName, a.ContactPhone, a.Service,
		a.StartsAt, a.Status, a.CalendarEventID,
	).Scan(&a.CreatedAt)
}

func (p *Postgres) ListAppointments(ctx context.Context, orgID string) ([]models.Appointment, error) {
	if !validID(orgID) {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, organization_id, COALESCE(conversation_id::text, ''), contact_name, contact_phone,
			service, starts_at, status, calendar_event_id, created_at
		FROM appointments WHERE organization_id = $1 ORDER BY starts_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.ConversationID, &a.ContactName, &a.ContactPhone,
			&a.Service, &a.StartsAt, &a.Status, &a.CalendarEventID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = models.StatusPending
	}
	return p.pool.QueryRow(ctx, `
		INSERT INTO orders (id, organization_id, conversation_id, contact_name, contact_phone, items, total, address, status)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		o.ID, o.OrganizationID, o.ConversationID, o.ContactName, o.ContactPhone, o.Items, o.Total,
		o.Address, o.Status,
	).Scan(&o.CreatedAt)
}

func (p *Postgres) ListOrders(ctx context.Context, orgID string) ([]models.Order, error) {
	if !validID(orgID) {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, organization_id, COALESCE(conversation_id::text, ''), contact_name, contact_phone,
			items, total::float8, address, status, created_at
		FROM orders WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.OrganizationID, &o.ConversationID, &o.ContactName, &o.ContactPhone,
			&o.Items, &o.Total, &o.Address, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) ListProducts(ctx context.Context, orgID string, onlyAvailable bool) ([]models.Product, error) {
	if !validID(orgID) {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, organization_id, name, description, price::float8, available
		FROM products
		WHERE organization_id = $1 AND ($2 = FALSE OR available)
		ORDER BY name`, orgID, onlyAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		var prod models.Product
		if err := rows.Scan(&prod.ID, &prod.OrganizationID, &prod.Name, &prod.Description, &prod.Price, &prod.Available); err != nil {
			return nil, err
		}
		out = append(out, prod)
	}
	return out, rows.Err()
}

func (p *Postgres) Usage(ctx context.Context, orgID string, since time.Time) (*models.Usage, error) {
	if _, err := p.Organization(ctx, orgID); err != nil {
		return nil, err
	}
	u := &models.Usage{OrganizationID: orgID, Since: since}
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM messages WHERE organization_id = $1 AND role = 'user' AND created_at >= $2),
			(SELECT count(*) FROM messages WHERE organization_id = $1 AND role = 'assistant' AND created_at >= $2),
			(SELECT COALESCE(sum(tokens), 0) FROM messages WHERE organization_id = $1 AND created_at >= $2),
			(SELECT count(*) FROM appointments WHERE organization_id = $1 AND created_at >= $2),
			(SELECT count(*) FROM orders WHERE organization_id = $1 AND created_at >= $2),
			(SELECT count(*) FROM conversations WHERE organization_id = $1 AND needs_human)`,
		orgID, since,
	).Scan(&u.InboundMessages, &u.OutboundMessages, &u.TokensUsed, &u.Appointments, &u.Orders, &u.HandoffsOpen)
	if err != nil {
		return nil, fmt.Errorf("usage org=%s: %w", orgID, err)
	}
	return u, nil
}
