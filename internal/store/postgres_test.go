package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zytech/internal/models"
)

func TestValidID(t *testing.T) {
	assert.True(t, validID(uuid.NewString()))
	assert.False(t, validID("foo"))
	assert.False(t, validID(""))
	assert.False(t, validID("org-bella"))
}

// newTestPostgres usa TEST_DATABASE_URL (una base descartable, no la de
// DATABASE_URL) y crea una organización propia que se borra al final.
func newTestPostgres(t *testing.T) (*Postgres, models.Organization) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL no seteado")
	}
	ctx := context.Background()

	pg, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, pg.Migrate(ctx))

	org := models.Organization{
		ID:            uuid.NewString(),
		Name:          "Pizzaria Bella",
		Vertical:      models.VerticalDelivery,
		BotTemplate:   "delivery_menu",
		PhoneNumberID: "test-" + uuid.NewString(),
		Active:        true,
	}
	_, err = pg.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, vertical, bot_template, phone_number_id, active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		org.ID, org.Name, org.Vertical, org.BotTemplate, org.PhoneNumberID, org.Active)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pg.pool.Exec(context.Background(), `DELETE FROM organizations WHERE id = $1`, org.ID)
	})
	return pg, org
}

func TestPostgres_InvalidIDsLikeMemory(t *testing.T) {
	pg, _ := newTestPostgres(t)
	ctx := context.Background()

	_, err := pg.Organization(ctx, "foo")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = pg.ConversationByID(ctx, "foo")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, pg.SetNeedsHuman(ctx, "foo", true), ErrNotFound)
	_, err = pg.Usage(ctx, "foo", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	orders, err := pg.ListOrders(ctx, "foo")
	require.NoError(t, err)
	assert.Empty(t, orders)
	msgs, err := pg.RecentMessages(ctx, "foo", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = pg.Organization(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_ConversationDataRoundTrip(t *testing.T) {
	pg, org := newTestPostgres(t)
	ctx := context.Background()

	c1, err := pg.Conversation(ctx, org.ID, "5511988887777")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultState, c1.State)
	assert.NotNil(t, c1.Data)

	c1.State = "PEDIDO"
	c1.ContactName = "Ana"
	c1.Data["cart"] = "2 Margherita"
	c1.Data["SLOT_1_ISO"] = "2025-03-10T09:00:00Z"
	require.NoError(t, pg.SaveConversation(ctx, c1))

	c2, err := pg.Conversation(ctx, org.ID, "5511988887777")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, "PEDIDO", c2.State)
	assert.Equal(t, "Ana", c2.ContactName)
	assert.Equal(t, c1.Data, c2.Data)

	require.NoError(t, pg.SetNeedsHuman(ctx, c1.ID, true))
	open, err := pg.ListConversations(ctx, org.ID, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].NeedsHuman)
}

func TestPostgres_MessagesAndUsage(t *testing.T) {
	pg, org := newTestPostgres(t)
	ctx := context.Background()
	since := time.Now().Add(-time.Minute)

	conv, err := pg.Conversation(ctx, org.ID, "5511988887777")
	require.NoError(t, err)

	waID := "wamid." + uuid.NewString()
	for i, content := range []string{"oi", "Olá! Como posso ajudar?", "cardápio"} {
		msg := &models.Message{ConversationID: conv.ID, OrganizationID: org.ID, Role: models.RoleUser, Content: content}
		if i == 1 {
			msg.Role = models.RoleAssistant
			msg.Tokens = 42
		}
		if i == 0 {
			msg.WAMessageID = waID
		}
		require.NoError(t, pg.AppendMessage(ctx, msg))
	}

	err = pg.AppendMessage(ctx, &models.Message{ConversationID: conv.ID, OrganizationID: org.ID, Role: models.RoleUser, Content: "oi", WAMessageID: waID})
	assert.ErrorIs(t, err, ErrDuplicate)

	recent, err := pg.RecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Olá! Como posso ajudar?", recent[0].Content)
	assert.Equal(t, "cardápio", recent[1].Content)

	require.NoError(t, pg.CreateOrder(ctx, &models.Order{OrganizationID: org.ID, ConversationID: conv.ID, Items: "2 Margherita", Total: 90}))
	require.NoError(t, pg.CreateAppointment(ctx, &models.Appointment{OrganizationID: org.ID, Service: "Mesa", StartsAt: time.Now().Add(24 * time.Hour)}))

	u, err := pg.Usage(ctx, org.ID, since)
	require.NoError(t, err)
	assert.Equal(t, 2, u.InboundMessages)
	assert.Equal(t, 1, u.OutboundMessages)
	assert.Equal(t, 42, u.TokensUsed)
	assert.Equal(t, 1, u.Orders)
	assert.Equal(t, 1, u.Appointments)
	assert.Equal(t, 0, u.HandoffsOpen)

	orders, err := pg.ListOrders(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 90, orders[0].Total, 0.001)
	assert.Equal(t, models.StatusPending, orders[0].Status)
}
