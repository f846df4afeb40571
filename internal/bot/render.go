package bot

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"zytech/internal/whatsapp"
)

type ReplyKind string

const (
	ReplyText    ReplyKind = "text"
	ReplyList    ReplyKind = "list"
	ReplyButtons ReplyKind = "buttons"
)

// Reply es lo que el bot quiere mandarle al contacto, todavía sin canal.
type Reply struct {
	Kind           ReplyKind
	Body           string
	Header         string
	HeaderImageURL string
	Footer         string
	ButtonText     string
	Sections       []whatsapp.Section
	Buttons        []whatsapp.Button
}

func TextReply(body string) *Reply {
	return &Reply{Kind: ReplyText, Body: body}
}

// Transcript es la versión en texto plano que se guarda en el historial.
func (r *Reply) Transcript() string {
	var b strings.Builder
	b.WriteString(r.Body)
	for _, s := range r.Sections {
		for _, row := range s.Rows {
			fmt.Fprintf(&b, "\n- %s", row.Title)
		}
	}
	for _, btn := range r.Buttons {
		fmt.Fprintf(&b, "\n[%s]", btn.Title)
	}
	return b.String()
}

// ---------------------
// Simple templating: {{name}}
// ---------------------

func renderVars(s string, vars map[string]string) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}

// PublicAssetURL arma una URL pública para un asset del tenant.
// El archivo vive en {assets}/{tenant}/assets/{path} y se sirve en
// /tenants/{tenant}/assets/{path}.
func PublicAssetURL(baseURL, tenant, assetPath string) (string, error) {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return "", fmt.Errorf("PUBLIC_BASE_URL no está configurada")
	}

	assetPath = strings.TrimLeft(assetPath, "/")
	clean := path.Clean(assetPath)

	// Seguridad: evitar traversal (..)
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, "../") {
		return "", fmt.Errorf("assetPath inválido: %q", assetPath)
	}

	parts := strings.Split(clean, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return fmt.Sprintf("%s/tenants/%s/assets/%s", base, url.PathEscape(tenant), strings.Join(parts, "/")), nil
}

// renderState arma el Reply de un estado de menú con las variables ya resueltas.
func renderState(st State, vars map[string]string, publicBaseURL, tenant string) (*Reply, error) {
	headerImageURL := ""
	if st.HeaderMedia != nil && strings.EqualFold(st.HeaderMedia.Type, "image") {
		if u := strings.TrimSpace(st.HeaderMedia.URL); u != "" {
			headerImageURL = u
		} else if p := strings.TrimSpace(st.HeaderMedia.Path); p != "" {
			u, err := PublicAssetURL(publicBaseURL, tenant, renderVars(p, vars))
			if err != nil {
				return nil, err
			}
			headerImageURL = u
		}
	}

	bodyText := strings.TrimSpace(st.Body)
	if bodyText == "" && st.Type != StateText {
		bodyText = "Escolha uma opção:"
	}
	bodyText = renderVars(bodyText, vars)

	switch st.Type {
	case StateText:
		return TextReply(bodyText), nil

	case StateInteractiveList:
		if st.List == nil {
			return nil, fmt.Errorf("estado es interactive_list pero list es nil")
		}
		sections := make([]whatsapp.Section, 0, len(st.List.Sections))
		for _, s := range st.List.Sections {
			ns := whatsapp.Section{
				Title: renderVars(s.Title, vars),
				Rows:  make([]whatsapp.Row, 0, len(s.Rows)),
			}
			for _, row := range s.Rows {
				title := strings.TrimSpace(renderVars(row.Title, vars))
				if title == "" {
					continue
				}
				ns.Rows = append(ns.Rows, whatsapp.Row{
					ID:          row.ID,
					Title:       title,
					Description: renderVars(row.Description, vars),
				})
			}
			if len(ns.Rows) > 0 {
				sections = append(sections, ns)
			}
		}
		if len(sections) == 0 {
			return nil, fmt.Errorf("estado sin filas para mostrar")
		}
		return &Reply{
			Kind:           ReplyList,
			Body:           bodyText,
			Header:         renderVars(st.List.Header, vars),
			HeaderImageURL: headerImageURL,
			Footer:         renderVars(st.List.Footer, vars),
			ButtonText:     renderVars(st.List.ButtonText, vars),
			Sections:       sections,
		}, nil

	case StateInteractiveButtons:
		if st.Buttons == nil {
			return nil, fmt.Errorf("estado es interactive_buttons pero buttons es nil")
		}
		btns := make([]whatsapp.Button, 0, len(st.Buttons.Buttons))
		for _, b := range st.Buttons.Buttons {
			// Un botón cuyo título quedó vacío (ej: {{slot_3}} sin turno) no se manda.
			title := strings.TrimSpace(renderVars(b.Title, vars))
			if title == "" {
				continue
			}
			btns = append(btns, whatsapp.Button{ID: b.ID, Title: title})
		}
		if len(btns) == 0 {
			return nil, fmt.Errorf("estado sin botones para mostrar")
		}
		return &Reply{
			Kind:           ReplyButtons,
			Body:           bodyText,
			Header:         renderVars(st.Buttons.Header, vars),
			HeaderImageURL: headerImageURL,
			Footer:         renderVars(st.Buttons.Footer, vars),
			Buttons:        btns,
		}, nil

	default:
		return nil, fmt.Errorf("tipo de estado no soportado: %s", st.Type)
	}
}
