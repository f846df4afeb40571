package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"zytech/internal/models"
	"zytech/internal/store"
	"zytech/internal/whatsapp"
)

const apologyText = "Desculpe, tivemos um problema. Tente novamente em instantes."

// Sender es el canal de salida. *whatsapp.Client lo implementa.
type Sender interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) error
	SendList(ctx context.Context, phoneNumberID, to, headerText, headerImageURL, body, footer, buttonText string, sections []whatsapp.Section) error
	SendButtons(ctx context.Context, phoneNumberID, to, headerText, headerImageURL, body, footer string, buttons []whatsapp.Button) error
}

type Status string

const (
	StatusIgnored   Status = "ignored"
	StatusDuplicate Status = "duplicate"
	StatusHandoff   Status = "handoff"
	StatusReplied   Status = "replied"
)

type Outcome struct {
	Status         Status
	OrganizationID string
	ConversationID string
	Reply          *Reply
	Effects        Effects
}

type Dispatcher struct {
	store     store.Store
	templates *Templates
	menu      *MenuBot
	llm       *LLMBot
	sender    Sender
	scheduler Scheduler
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

type DispatcherConfig struct {
	Store         store.Store
	Templates     *Templates
	LLM           *LLMBot
	Sender        Sender
	Scheduler     Scheduler // opcional
	Location      *time.Location
	PublicBaseURL string
	Logger        *zap.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	d := &Dispatcher{
		store:     cfg.Store,
		templates: cfg.Templates,
		llm:       cfg.LLM,
		sender:    cfg.Sender,
		scheduler: cfg.Scheduler,
		loc:       loc,
		now:       time.Now,
		logger:    cfg.Logger,
	}
	d.menu = NewMenuBot(d.actionEnv, cfg.PublicBaseURL, cfg.Logger)
	return d
}

func (d *Dispatcher) actionEnv(t *Turn) *ActionEnv {
	return &ActionEnv{
		Store:     d.store,
		Scheduler: d.scheduler,
		Org:       t.Org,
		Conv:      t.Conv,
		Loc:       d.loc,
		Now:       d.now().In(d.loc),
	}
}

// Handle procesa un mensaje entrante de punta a punta. Un error devuelto es
// para loguear; si hubo que contestar, el contacto ya recibió una disculpa.
func (d *Dispatcher) Handle(ctx context.Context, in whatsapp.Inbound) (*Outcome, error) {
	log := d.logger.With(zap.String("phone_number_id", in.PhoneNumberID), zap.String("wa_id", in.From), zap.String("msg_id", in.MessageID))

	org, err := d.store.OrganizationByPhoneNumberID(ctx, in.PhoneNumberID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("número sin organización, se ignora")
		return &Outcome{Status: StatusIgnored}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolver organización: %w", err)
	}
	if !org.Active {
		log.Info("organización inactiva, se ignora", zap.String("org", org.ID))
		return &Outcome{Status: StatusIgnored, OrganizationID: org.ID}, nil
	}
	log = log.With(zap.String("org", org.ID))

	if !in.HasContent() {
		log.Debug("mensaje sin contenido procesable", zap.String("type", in.Type))
		return &Outcome{Status: StatusIgnored, OrganizationID: org.ID}, nil
	}

	conv, err := d.store.Conversation(ctx, org.ID, in.From)
	if err != nil {
		return nil, fmt.Errorf("conversación: %w", err)
	}
	out := &Outcome{OrganizationID: org.ID, ConversationID: conv.ID}
	if in.ContactName != "" && in.ContactName != conv.ContactName {
		conv.ContactName = in.ContactName
	}

	err = d.store.AppendMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		OrganizationID: org.ID,
		Role:           models.RoleUser,
		Content:        in.Text,
		WAMessageID:    in.MessageID,
	})
	if errors.Is(err, store.ErrDuplicate) {
		log.Info("mensaje repetido por Meta, se ignora")
		out.Status = StatusDuplicate
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("guardar mensaje: %w", err)
	}

	if conv.NeedsHuman {
		log.Info("conversación en atención humana, el bot no contesta", zap.String("conv", conv.ID))
		out.Status = StatusHandoff
		return out, d.store.SaveConversation(ctx, conv)
	}

	tmpl, err := d.templates.Get(org.BotTemplate)
	if err != nil {
		d.apologize(ctx, org, in, log)
		return out, fmt.Errorf("template %q: %w", org.BotTemplate, err)
	}

	turn := &Turn{Org: org, Conv: conv, Template: tmpl, Text: in.Text, SelectedID: in.SelectedID}
	log.Debug("🤖 procesando", zap.String("template", tmpl.Name), zap.String("kind", string(tmpl.Kind)), zap.String("state", conv.State))

	var res *Result
	switch tmpl.Kind {
	case KindMenu:
		res, err = d.menu.Respond(ctx, turn)
	case KindLLM:
		res, err = d.llm.Respond(ctx, turn)
	default:
		err = fmt.Errorf("kind no soportado: %s", tmpl.Kind)
	}
	if err != nil {
		d.apologize(ctx, org, in, log)
		return out, fmt.Errorf("bot %s: %w", tmpl.Name, err)
	}

	d.applyEffects(ctx, org, conv, res.Effects, log)
	out.Effects = res.Effects
	out.Reply = res.Reply

	if err := d.store.AppendMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		OrganizationID: org.ID,
		Role:           models.RoleAssistant,
		Content:        res.Reply.Transcript(),
		Tokens:         res.Tokens,
	}); err != nil {
		log.Error("no se pudo guardar la respuesta", zap.Error(err))
	}
	if err := d.store.SaveConversation(ctx, conv); err != nil {
		log.Error("no se pudo guardar la conversación", zap.Error(err))
	}

	if err := d.send(ctx, org.PhoneNumberID, in.From, res.Reply); err != nil {
		return out, fmt.Errorf("enviar respuesta: %w", err)
	}
	out.Status = StatusReplied
	if res.Effects.Handoff {
		out.Status = StatusHandoff
	}
	return out, nil
}

// applyEffects persiste turnos y pedidos y marca el handoff. Un efecto que
// falla se loguea y no corta la respuesta al contacto.
func (d *Dispatcher) applyEffects(ctx context.Context, org *models.Organization, conv *models.Conversation, eff Effects, log *zap.Logger) {
	for _, req := range eff.Appointments {
		appt := &models.Appointment{
			OrganizationID: org.ID,
			ConversationID: conv.ID,
			ContactName:    firstNonEmpty(req.ContactName, conv.ContactName),
			ContactPhone:   conv.ContactPhone,
			Service:        req.Service,
			StartsAt:       req.StartsAt,
			Status:         models.StatusConfirmed,
		}
		if d.scheduler != nil && org.CalendarID != "" {
			summary := fmt.Sprintf("%s: %s", appt.Service, appt.ContactName)
			desc := fmt.Sprintf("Agendado via WhatsApp.\nTelefone: %s", appt.ContactPhone)
			eventID, err := d.scheduler.CreateEvent(ctx, org.CalendarID, appt.StartsAt, summary, desc)
			if err != nil {
				log.Error("❌ Error creando evento en Google", zap.Error(err))
			} else {
				appt.CalendarEventID = eventID
			}
		}
		if err := d.store.CreateAppointment(ctx, appt); err != nil {
			log.Error("no se pudo guardar el agendamiento", zap.Error(err))
			continue
		}
		log.Info("📅 agendamiento creado", zap.String("appointment", appt.ID), zap.Time("starts_at", appt.StartsAt))
	}

	for _, req := range eff.Orders {
		order := &models.Order{
			OrganizationID: org.ID,
			ConversationID: conv.ID,
			ContactName:    firstNonEmpty(req.ContactName, conv.ContactName),
			ContactPhone:   conv.ContactPhone,
			Items:          req.Items,
			Total:          req.Total,
			Address:        req.Address,
			Status:         models.StatusPending,
		}
		if err := d.store.CreateOrder(ctx, order); err != nil {
			log.Error("no se pudo guardar el pedido", zap.Error(err))
			continue
		}
		log.Info("🧾 pedido creado", zap.String("order", order.ID), zap.Float64("total", order.Total))
	}

	if eff.Handoff {
		conv.NeedsHuman = true
		log.Info("🙋 conversación derivada a humano", zap.String("conv", conv.ID))
	}
}

func (d *Dispatcher) send(ctx context.Context, phoneNumberID, to string, r *Reply) error {
	switch r.Kind {
	case ReplyList:
		return d.sender.SendList(ctx, phoneNumberID, to, r.Header, r.HeaderImageURL, r.Body, r.Footer, r.ButtonText, r.Sections)
	case ReplyButtons:
		return d.sender.SendButtons(ctx, phoneNumberID, to, r.Header, r.HeaderImageURL, r.Body, r.Footer, r.Buttons)
	default:
		return d.sender.SendText(ctx, phoneNumberID, to, r.Body)
	}
}

func (d *Dispatcher) apologize(ctx context.Context, org *models.Organization, in whatsapp.Inbound, log *zap.Logger) {
	if err := d.sender.SendText(ctx, org.PhoneNumberID, in.From, apologyText); err != nil {
		log.Error("no se pudo enviar la disculpa", zap.Error(err))
	}
}
