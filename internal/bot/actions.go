package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"zytech/internal/calendar"
	"zytech/internal/models"
	"zytech/internal/store"
)

// Scheduler es la parte de Google Calendar que usan los bots.
type Scheduler interface {
	NextAvailableSlots(ctx context.Context, calendarID string) ([]calendar.Slot, error)
	CreateEvent(ctx context.Context, calendarID string, start time.Time, summary, description string) (string, error)
}

// ActionEnv es lo que recibe una acción de menú.
type ActionEnv struct {
	Store     store.Store
	Scheduler Scheduler // nil si no hay credenciales de Google
	Org       *models.Organization
	Conv      *models.Conversation
	Loc       *time.Location
	Now       time.Time
}

type ActionResult struct {
	Vars    map[string]string
	Effects Effects
}

// ActionFunc devuelve variables nuevas para el template (se persisten en
// Conversation.Data) y los efectos que el dispatcher tiene que aplicar.
type ActionFunc func(ctx context.Context, env *ActionEnv) (*ActionResult, error)

var defaultActions = map[string]ActionFunc{
	"lookup_contact":       actionLookupContact,
	"list_catalog":         actionListCatalog,
	"get_calendar_slots":   actionGetCalendarSlots,
	"schedule_appointment": actionScheduleAppointment,
	"create_order":         actionCreateOrder,
	"request_human":        actionRequestHuman,
}

// --- Contacto: ¿ya es cliente? ---

func actionLookupContact(ctx context.Context, env *ActionEnv) (*ActionResult, error) {
	vars := map[string]string{
		"is_client":   "false",
		"client_name": firstNonEmpty(env.Conv.ContactName, "Visitante"),
		"last_visit":  "",
	}

	appts, err := env.Store.ListAppointments(ctx, env.Org.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup appointments: %w", err)
	}
	var last time.Time
	for _, a := range appts {
		if a.ContactPhone == env.Conv.ContactPhone && a.StartsAt.Before(env.Now) && a.StartsAt.After(last) {
			last = a.StartsAt
		}
	}
	if !last.IsZero() {
		vars["is_client"] = "true"
		vars["last_visit"] = last.In(env.Loc).Format("02/01/2006")
		return &ActionResult{Vars: vars}, nil
	}

	orders, err := env.Store.ListOrders(ctx, env.Org.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup orders: %w", err)
	}
	for _, o := range orders {
		if o.ContactPhone == env.Conv.ContactPhone {
			vars["is_client"] = "true"
			break
		}
	}
	return &ActionResult{Vars: vars}, nil
}

// --- Catálogo ---

func formatCatalog(products []models.Product) string {
	if len(products) == 0 {
		return "Catálogo indisponível no momento."
	}
	var b strings.Builder
	for i, p := range products {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "• %s: %s", p.Name, formatMoney(p.Price))
		if p.Description != "" {
			fmt.Fprintf(&b, " (%s)", p.Description)
		}
	}
	return b.String()
}

func actionListCatalog(ctx context.Context, env *ActionEnv) (*ActionResult, error) {
	products, err := env.Store.ListProducts(ctx, env.Org.ID, true)
	if err != nil {
		return nil, fmt.Errorf("catálogo: %w", err)
	}
	return &ActionResult{Vars: map[string]string{
		"catalog":       formatCatalog(products),
		"catalog_count": strconv.Itoa(len(products)),
	}}, nil
}

// --- Turnos ---

// slotButtons es cuántos horarios entran en un mensaje de botones.
const slotButtons = 3

var errNoSlots = errors.New("no hay horarios disponibles")

func actionGetCalendarSlots(ctx context.Context, env *ActionEnv) (*ActionResult, error) {
	var slots []calendar.Slot
	if env.Scheduler != nil && env.Org.CalendarID != "" {
		s, err := env.Scheduler.NextAvailableSlots(ctx, env.Org.CalendarID)
		if err != nil {
			return nil, fmt.Errorf("google calendar: %w", err)
		}
		slots = s
	} else {
		// Sin Google Calendar, lo ocupado son los turnos ya guardados.
		appts, err := env.Store.ListAppointments(ctx, env.Org.ID)
		if err != nil {
			return nil, fmt.Errorf("turnos: %w", err)
		}
		busy := make([]calendar.Interval, 0, len(appts))
		for _, a := range appts {
			busy = append(busy, calendar.Interval{Start: a.StartsAt, End: a.StartsAt.Add(time.Hour)})
		}
		slots = calendar.FreeSlots(env.Now, busy, env.Loc)
	}

	if len(slots) == 0 {
		return nil, errNoSlots
	}
	if len(slots) > slotButtons {
		slots = slots[:slotButtons]
	}

	// Vacío borra lo que quedó de un listado anterior: sin título no hay
	// botón y sin _ISO no se puede confirmar.
	vars := map[string]string{"slots_count": strconv.Itoa(len(slots))}
	ids := make([]string, 0, len(slots))
	for n := 1; n <= slotButtons; n++ {
		vars[fmt.Sprintf("slot_%d", n)] = ""
		vars[fmt.Sprintf("SLOT_%d_ISO", n)] = ""
	}
	for i, s := range slots {
		vars[fmt.Sprintf("slot_%d", i+1)] = s.Text
		// Variable oculta con la fecha real; la usa schedule_appointment.
		vars[s.ID+"_ISO"] = s.ISOValue
		ids = append(ids, s.ID)
	}
	vars["slot_ids"] = strings.Join(ids, ",")
	return &ActionResult{Vars: vars}, nil
}

func actionScheduleAppointment(_ context.Context, env *ActionEnv) (*ActionResult, error) {
	selectedID := env.Conv.Data["last_selected_id"]
	if selectedID == "" || !slices.Contains(strings.Split(env.Conv.Data["slot_ids"], ","), selectedID) {
		return nil, fmt.Errorf("el horario %q no está en el último listado", selectedID)
	}
	isoDate := env.Conv.Data[selectedID+"_ISO"]
	if isoDate == "" {
		return nil, errors.New("no seleccionó un horario válido o expiró la sesión")
	}
	startsAt, err := time.Parse(time.RFC3339, isoDate)
	if err != nil {
		return nil, fmt.Errorf("fecha inválida %q: %w", isoDate, err)
	}
	if startsAt.Before(env.Now) {
		return nil, fmt.Errorf("el horario %s ya pasó", isoDate)
	}

	name := firstNonEmpty(env.Conv.ContactName, env.Conv.Data["client_name"])
	return &ActionResult{
		Vars: map[string]string{
			"appointment_time": startsAt.In(env.Loc).Format("02/01 às 15:04"),
			// Un horario se confirma una sola vez.
			"slot_ids": "",
		},
		Effects: Effects{Appointments: []AppointmentRequest{{
			Service:     firstNonEmpty(env.Conv.Data["service"], "Atendimento"),
			StartsAt:    startsAt,
			ContactName: name,
		}}},
	}, nil
}

// --- Pedidos ---

func actionCreateOrder(ctx context.Context, env *ActionEnv) (*ActionResult, error) {
	cart := strings.TrimSpace(env.Conv.Data["cart"])
	if cart == "" {
		return nil, errors.New("carrinho vazio")
	}
	products, err := env.Store.ListProducts(ctx, env.Org.ID, true)
	if err != nil {
		return nil, fmt.Errorf("catálogo: %w", err)
	}
	total := cartTotal(cart, products)

	return &ActionResult{
		Vars: map[string]string{
			"order_items": cart,
			"order_total": formatMoney(total),
		},
		Effects: Effects{Orders: []OrderRequest{{
			Items:       cart,
			Total:       total,
			Address:     env.Conv.Data["address"],
			ContactName: env.Conv.ContactName,
		}}},
	}, nil
}

// cartTotal suma los productos del catálogo que aparecen en el texto del
// carrito. "2x margherita" o "2 margherita" cuentan doble.
func cartTotal(cart string, products []models.Product) float64 {
	text := normalize(cart)
	tokens := strings.Fields(text)
	var total float64
	for _, p := range products {
		name := normalize(p.Name)
		if !containsPhrase(text, name) {
			continue
		}
		qty := 1
		first := strings.Fields(name)[0]
		for i, tok := range tokens {
			if tok != first || i == 0 {
				continue
			}
			if n, err := strconv.Atoi(strings.TrimSuffix(tokens[i-1], "x")); err == nil && n > 0 {
				qty = n
			}
			break
		}
		total += float64(qty) * p.Price
	}
	return total
}

func actionRequestHuman(_ context.Context, _ *ActionEnv) (*ActionResult, error) {
	return &ActionResult{Effects: Effects{Handoff: true}}, nil
}
