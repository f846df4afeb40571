package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	TagAppointment = "AGENDAMENTO_CONFIRMADO"
	TagOrder       = "PEDIDO_CONFIRMADO"
	TagVisit       = "VISITA_AGENDADA"
	TagHuman       = "ATENDENTE_HUMANO"
)

var allTags = []string{TagAppointment, TagOrder, TagVisit, TagHuman}

func knownTag(name string) bool {
	for _, t := range allTags {
		if t == name {
			return true
		}
	}
	return false
}

// [NOMBRE] o [NOMBRE: k=v; k=v]. Sólo mayúsculas y _ en el nombre para no
// comerse texto entre corchetes que escriba el modelo.
var tagRe = regexp.MustCompile(`\[([A-Z_]{3,})(?:\s*:\s*([^\]]*))?\]`)

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

type Tag struct {
	Name   string
	Fields map[string]string
	Raw    string
}

// ExtractTags saca los tags conocidos del texto y devuelve el texto limpio.
// Los corchetes que no son tags conocidos quedan como están.
func ExtractTags(text string) (string, []Tag) {
	var tags []Tag
	clean := tagRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := tagRe.FindStringSubmatch(m)
		if !knownTag(sub[1]) {
			return m
		}
		tags = append(tags, Tag{Name: sub[1], Fields: parseFields(sub[2]), Raw: m})
		return ""
	})
	clean = blankLinesRe.ReplaceAllString(clean, "\n\n")
	lines := strings.Split(clean, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), tags
}

// parseFields acepta "k=v; k=v" y también "k: v, k: v" que a veces devuelve el modelo
// cuando no hay ';'.
func parseFields(raw string) map[string]string {
	out := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}
	sep := ";"
	if !strings.Contains(raw, ";") && strings.Count(raw, "=") > 1 {
		sep = ","
	}
	for _, part := range strings.Split(raw, sep) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			k, v, ok = strings.Cut(part, ":")
		}
		if !ok {
			continue
		}
		k = normalize(k)
		k = strings.ReplaceAll(k, " ", "_")
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// tagEffects traduce los tags a efectos. Los tags que no están en allowed se
// ignoran; los malformados vuelven como error sin frenar a los demás.
func tagEffects(tags []Tag, allowed []string, loc *time.Location, now time.Time) (Effects, []error) {
	var eff Effects
	var errs []error

	allow := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allow[a] = true
	}

	for _, tag := range tags {
		if !allow[tag.Name] {
			errs = append(errs, fmt.Errorf("tag %s no habilitado en el template", tag.Name))
			continue
		}
		switch tag.Name {
		case TagHuman:
			eff.Handoff = true

		case TagAppointment:
			starts, err := parseDateTime(tag.Fields["data"], tag.Fields["hora"], loc, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", tag.Raw, err))
				continue
			}
			eff.Appointments = append(eff.Appointments, AppointmentRequest{
				Service:     firstNonEmpty(tag.Fields["servico"], tag.Fields["servicio"], "Atendimento"),
				StartsAt:    starts,
				ContactName: tag.Fields["nome"],
			})

		case TagVisit:
			starts, err := parseDateTime(tag.Fields["data"], tag.Fields["hora"], loc, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", tag.Raw, err))
				continue
			}
			eff.Appointments = append(eff.Appointments, AppointmentRequest{
				Service:     "Visita: " + firstNonEmpty(tag.Fields["imovel"], "imóvel"),
				StartsAt:    starts,
				ContactName: tag.Fields["nome"],
			})

		case TagOrder:
			items := tag.Fields["itens"]
			if items == "" {
				errs = append(errs, fmt.Errorf("%s: sin itens", tag.Raw))
				continue
			}
			total, err := parseMoney(tag.Fields["total"])
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", tag.Raw, err))
				continue
			}
			eff.Orders = append(eff.Orders, OrderRequest{
				Items:       items,
				Total:       total,
				Address:     tag.Fields["endereco"],
				ContactName: tag.Fields["nome"],
			})
		}
	}
	return eff, errs
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02/01/06", "02-01-2006"}

// parseDateTime acepta YYYY-MM-DD o DD/MM/YYYY, y también DD/MM (año de now,
// o el siguiente si la fecha ya pasó). La hora es HH:MM o "14h"/"14h30".
func parseDateTime(date, hour string, loc *time.Location, now time.Time) (time.Time, error) {
	date = strings.TrimSpace(date)
	hour = strings.TrimSpace(strings.ToLower(hour))
	if date == "" || hour == "" {
		return time.Time{}, fmt.Errorf("data/hora vacías")
	}

	hour = strings.TrimSuffix(hour, "hs")
	if !strings.ContainsAny(hour, ":h") {
		hour += ":00"
	}
	if h, m, ok := strings.Cut(hour, "h"); ok {
		if m == "" {
			m = "00"
		}
		hour = h + ":" + m
	}
	hm, err := time.Parse("15:04", hour)
	if err != nil {
		return time.Time{}, fmt.Errorf("hora inválida %q", hour)
	}

	var day time.Time
	for _, layout := range dateLayouts {
		if d, err := time.ParseInLocation(layout, date, loc); err == nil {
			day = d
			break
		}
	}
	if day.IsZero() {
		d, err := time.ParseInLocation("02/01", date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("data inválida %q", date)
		}
		n := now.In(loc)
		day = time.Date(n.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
		if day.Before(time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)) {
			day = day.AddDate(1, 0, 0)
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, loc), nil
}

// Miles con punto y sin decimales: "1.250", "2.500.000".
var dotThousandsRe = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)

// parseMoney acepta "R$ 1.234,50", "45,90", "45.90", "1.250" y "45".
func parseMoney(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.EqualFold(s[:2], "R$") {
		s = s[2:]
	}
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, nil
	}
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case dotThousandsRe.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("total inválido %q", raw)
	}
	return v, nil
}

func formatMoney(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	return "R$ " + strings.Replace(s, ".", ",", 1)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
