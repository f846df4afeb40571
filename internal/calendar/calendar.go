package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	slotDuration = time.Hour
	firstHour    = 9
	lastHour     = 17
	lookAhead    = 3 // días
	maxSlots     = 3
)

type Slot struct {
	ID       string
	Text     string
	ISOValue string
}

type Interval struct {
	Start time.Time
	End   time.Time
}

// Service envuelve Google Calendar. El calendar_id es por organización, así que
// viaja en cada llamada.
type Service struct {
	srv *gcal.Service
	loc *time.Location
}

func NewService(ctx context.Context, credsFile string, loc *time.Location) (*Service, error) {
	if credsFile == "" {
		return nil, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS no está configurado")
	}
	srv, err := gcal.NewService(ctx, option.WithCredentialsFile(credsFile))
	if err != nil {
		return nil, fmt.Errorf("error creando cliente calendar: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{srv: srv, loc: loc}, nil
}

// NextAvailableSlots consulta free/busy y devuelve hasta 3 turnos libres.
func (s *Service) NextAvailableSlots(ctx context.Context, calendarID string) ([]Slot, error) {
	now := time.Now().In(s.loc)

	query := &gcal.FreeBusyRequest{
		TimeMin: now.Format(time.RFC3339),
		TimeMax: now.Add(lookAhead * 24 * time.Hour).Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}
	res, err := s.srv.Freebusy.Query(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy %s: %w", calendarID, err)
	}

	var busy []Interval
	for _, b := range res.Calendars[calendarID].Busy {
		start, err1 := time.Parse(time.RFC3339, b.Start)
		end, err2 := time.Parse(time.RFC3339, b.End)
		if err1 != nil || err2 != nil {
			continue
		}
		busy = append(busy, Interval{Start: start, End: end})
	}
	return FreeSlots(now, busy, s.loc), nil
}

// FreeSlots arma los turnos de 1h entre 09 y 17 (hora local de loc) de los
// próximos días que no se pisan con ningún rango ocupado.
func FreeSlots(now time.Time, busy []Interval, loc *time.Location) []Slot {
	now = now.In(loc)
	var slots []Slot
	counter := 1
	for d := 0; d < lookAhead; d++ {
		day := now.AddDate(0, 0, d)
		for h := firstHour; h < lastHour; h++ {
			slotStart := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc)
			slotEnd := slotStart.Add(slotDuration)
			if slotStart.Before(now) {
				continue
			}

			isBusy := false
			for _, b := range busy {
				if slotStart.Before(b.End) && slotEnd.After(b.Start) {
					isBusy = true
					break
				}
			}
			if isBusy {
				continue
			}

			slots = append(slots, Slot{
				ID:       fmt.Sprintf("SLOT_%d", counter),
				Text:     slotStart.Format("02/01 15:04"),
				ISOValue: slotStart.Format(time.RFC3339),
			})
			counter++
			if len(slots) >= maxSlots {
				return slots
			}
		}
	}
	return slots
}

// CreateEvent agenda un evento de 1h y devuelve su id.
func (s *Service) CreateEvent(ctx context.Context, calendarID string, start time.Time, summary, description string) (string, error) {
	end := start.Add(slotDuration)
	event := &gcal.Event{
		Summary:     summary,
		Description: description,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	created, err := s.srv.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("error creando evento: %w", err)
	}
	return created.Id, nil
}
