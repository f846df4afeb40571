package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"zytech/internal/llm"
	"zytech/internal/models"
	"zytech/internal/store"
)

const defaultFallback = "Desculpe, não consegui responder agora. Pode repetir, por favor?"

var weekdaysPT = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

var tagInstructions = map[string]string{
	TagAppointment: "Quando o cliente CONFIRMAR um agendamento, termine a resposta com:\n" +
		"[AGENDAMENTO_CONFIRMADO: servico=<serviço>; data=<AAAA-MM-DD>; hora=<HH:MM>; nome=<nome do cliente>]",
	TagOrder: "Quando o cliente CONFIRMAR o pedido, termine a resposta com:\n" +
		"[PEDIDO_CONFIRMADO: itens=<itens e quantidades>; total=<valor>; endereco=<endereço de entrega>; nome=<nome do cliente>]",
	TagVisit: "Quando o cliente CONFIRMAR uma visita a um imóvel, termine a resposta com:\n" +
		"[VISITA_AGENDADA: imovel=<imóvel>; data=<AAAA-MM-DD>; hora=<HH:MM>; nome=<nome do cliente>]",
	TagHuman: "Se o cliente pedir para falar com uma pessoa, ou você não souber resolver, termine a resposta com:\n" +
		"[ATENDENTE_HUMANO]",
}

// BuildSystemPrompt arma el prompt de sistema de un bot LLM.
func BuildSystemPrompt(tmpl *Template, org *models.Organization, now time.Time, catalog []models.Product) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(tmpl.SystemPrompt))

	b.WriteString("\n\n--- Empresa ---\n")
	fmt.Fprintf(&b, "Nome: %s\n", org.Name)
	if org.Address != "" {
		fmt.Fprintf(&b, "Endereço: %s\n", org.Address)
	}
	if org.BusinessHours != "" {
		fmt.Fprintf(&b, "Horário de funcionamento: %s\n", org.BusinessHours)
	}
	fmt.Fprintf(&b, "Agora: %s, %s\n", weekdaysPT[now.Weekday()], now.Format("2006-01-02 15:04"))

	if tmpl.IncludeCatalog {
		b.WriteString("\n--- Catálogo ---\n")
		b.WriteString(formatCatalog(catalog))
		b.WriteString("\n")
	}

	if len(tmpl.AllowedTags) > 0 {
		b.WriteString("\n--- Marcadores ---\n")
		b.WriteString("Use os marcadores abaixo exatamente no formato indicado, só depois da confirmação explícita do cliente. Nunca explique os marcadores ao cliente.\n")
		for _, tag := range tmpl.AllowedTags {
			if ins, ok := tagInstructions[tag]; ok {
				b.WriteString("\n")
				b.WriteString(ins)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// historyTurns convierte mensajes guardados en turnos para el modelo. Los
// mensajes system no se mandan y el primer turno tiene que ser del usuario.
func historyTurns(msgs []models.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			turns = append(turns, llm.Turn{Role: llm.RoleUser, Text: m.Content})
		case models.RoleAssistant:
			if len(turns) == 0 {
				continue
			}
			turns = append(turns, llm.Turn{Role: llm.RoleModel, Text: m.Content})
		}
	}
	return turns
}

// LLMBot contesta con una sola completion por mensaje.
type LLMBot struct {
	completer llm.Completer
	store     store.Store
	window    int
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

func NewLLMBot(completer llm.Completer, st store.Store, window int, loc *time.Location, logger *zap.Logger) *LLMBot {
	return &LLMBot{completer: completer, store: st, window: window, loc: loc, now: time.Now, logger: logger}
}

func (b *LLMBot) Respond(ctx context.Context, t *Turn) (*Result, error) {
	if b.completer == nil {
		return nil, fmt.Errorf("template %s es llm pero no hay modelo configurado", t.Template.Name)
	}
	now := b.now().In(b.loc)

	history, err := b.store.RecentMessages(ctx, t.Conv.ID, b.window)
	if err != nil {
		return nil, fmt.Errorf("historial: %w", err)
	}

	var catalog []models.Product
	if t.Template.IncludeCatalog {
		catalog, err = b.store.ListProducts(ctx, t.Org.ID, true)
		if err != nil {
			return nil, fmt.Errorf("catálogo: %w", err)
		}
	}

	req := llm.Request{
		System:      BuildSystemPrompt(t.Template, t.Org, now, catalog),
		History:     historyTurns(history),
		Temperature: t.Template.Temperature,
	}
	comp, err := b.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	text, tags := ExtractTags(comp.Text)
	eff, tagErrs := tagEffects(tags, t.Template.AllowedTags, b.loc, now)
	for _, e := range tagErrs {
		b.logger.Warn("tag ignorado", zap.String("org", t.Org.ID), zap.Error(e))
	}

	if text == "" {
		text = firstNonEmpty(t.Template.Fallback, defaultFallback)
	}
	return &Result{Reply: TextReply(text), Effects: eff, Tokens: comp.Tokens}, nil
}
