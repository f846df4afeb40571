package bot

import "time"

// Effects son los efectos secundarios que pide un turno del bot. Los aplica
// el dispatcher, no el bot.
type Effects struct {
	Appointments []AppointmentRequest
	Orders       []OrderRequest
	Handoff      bool
}

type AppointmentRequest struct {
	Service     string
	StartsAt    time.Time
	ContactName string
}

type OrderRequest struct {
	Items       string
	Total       float64
	Address     string
	ContactName string
}

func (e *Effects) merge(o Effects) {
	e.Appointments = append(e.Appointments, o.Appointments...)
	e.Orders = append(e.Orders, o.Orders...)
	e.Handoff = e.Handoff || o.Handoff
}

func (e Effects) Empty() bool {
	return len(e.Appointments) == 0 && len(e.Orders) == 0 && !e.Handoff
}
