package bot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"zytech/internal/models"
)

type Kind string

const (
	KindMenu Kind = "menu"
	KindLLM  Kind = "llm"
)

const (
	StateText               = "text"
	StateInteractiveList    = "interactive_list"
	StateInteractiveButtons = "interactive_buttons"
)

// Template es la definición de un bot, una por archivo YAML.
type Template struct {
	Name     string          `yaml:"name"`
	Kind     Kind            `yaml:"kind"`
	Vertical models.Vertical `yaml:"vertical"`

	// kind: menu
	States map[string]State `yaml:"states,omitempty"`

	// kind: llm
	SystemPrompt   string   `yaml:"system_prompt,omitempty"`
	Temperature    float32  `yaml:"temperature,omitempty"`
	IncludeCatalog bool     `yaml:"include_catalog,omitempty"`
	AllowedTags    []string `yaml:"allowed_tags,omitempty"`
	Fallback       string   `yaml:"fallback,omitempty"`
}

type State struct {
	Type string `yaml:"type"` // "text" | "interactive_list" | "interactive_buttons"
	Body string `yaml:"body"`

	// Action: nombre de la acción a ejecutar al entrar al estado (ej: "get_calendar_slots").
	Action string `yaml:"action,omitempty"`
	// Si la acción falla y hay OnErrorNext, se renderiza ese estado.
	OnErrorNext string `yaml:"on_error_next,omitempty"`
	// Handoff marca la conversación para atención humana al entrar al estado.
	Handoff bool `yaml:"handoff,omitempty"`
	// CaptureAs guarda el texto recibido (o el título elegido) en Data[CaptureAs].
	CaptureAs string `yaml:"capture_as,omitempty"`

	HeaderMedia *HeaderMedia `yaml:"header_media,omitempty"`
	List        *List        `yaml:"list,omitempty"`
	Buttons     *Buttons     `yaml:"buttons,omitempty"`

	// Transiciones
	Keywords     map[string]string `yaml:"keywords,omitempty"`       // literal -> next_state
	OnSelectNext map[string]string `yaml:"on_select_next,omitempty"` // row/button id -> next_state
	OnTextNext   string            `yaml:"on_text_next,omitempty"`
}

type List struct {
	Header     string    `yaml:"header"`
	ButtonText string    `yaml:"button_text"`
	Footer     string    `yaml:"footer"`
	Sections   []Section `yaml:"sections"`
}

type Section struct {
	Title string `yaml:"title"`
	Rows  []Row  `yaml:"rows"`
}

type Row struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Buttons struct {
	Header  string   `yaml:"header"`
	Footer  string   `yaml:"footer"`
	Buttons []Button `yaml:"buttons"`
}

type Button struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

type HeaderMedia struct {
	Type string `yaml:"type"`           // "image"
	Path string `yaml:"path,omitempty"` // local: relativo a {assets}/{tenant}/assets/
	URL  string `yaml:"url,omitempty"`  // remoto: https://...
}

// ParseTemplate decodifica y valida un template. name se usa si el YAML no trae uno.
func ParseTemplate(name string, b []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("yaml inválido: %w", err)
	}
	if t.Name == "" {
		t.Name = name
	}
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func LoadTemplate(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no pude leer %s: %w", path, err)
	}
	t, err := ParseTemplate(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadDir carga y valida todos los .yaml/.yml de dir. Junta todos los errores.
func LoadDir(dir string) (map[string]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("no pude listar %s: %w", dir, err)
	}
	out := make(map[string]*Template)
	var errs []error
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		t, err := LoadTemplate(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[t.Name] = t
	}
	return out, errors.Join(errs...)
}

// ---------------------
// Validation (WhatsApp limits)
// ---------------------

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func Validate(t *Template) error {
	switch t.Kind {
	case KindMenu:
		return validateMenu(t)
	case KindLLM:
		var errs []string
		if strings.TrimSpace(t.SystemPrompt) == "" {
			errs = append(errs, "system_prompt vacío")
		}
		if t.Temperature < 0 || t.Temperature > 2 {
			errs = append(errs, fmt.Sprintf("temperature fuera de rango: %v", t.Temperature))
		}
		for _, tag := range t.AllowedTags {
			if !knownTag(tag) {
				errs = append(errs, fmt.Sprintf("tag desconocido: %q", tag))
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("template %s inválido:\n- %s", t.Name, strings.Join(errs, "\n- "))
		}
		return nil
	default:
		return fmt.Errorf("template %s: kind no soportado: %q", t.Name, t.Kind)
	}
}

func validateMenu(t *Template) error {
	var errs []string

	if _, ok := t.States[models.DefaultState]; !ok {
		errs = append(errs, fmt.Sprintf("falta el estado %s", models.DefaultState))
	}

	// Orden estable para que los mensajes de error no bailen entre corridas.
	names := make([]string, 0, len(t.States))
	for n := range t.States {
		names = append(names, n)
	}
	sort.Strings(names)

	target := func(stateName, field, next string) {
		if _, ok := t.States[next]; !ok {
			errs = append(errs, fmt.Sprintf("state=%s %s apunta a estado inexistente %q", stateName, field, next))
		}
	}

	for _, stateName := range names {
		st := t.States[stateName]

		for kw, next := range st.Keywords {
			if normalize(kw) == "" {
				errs = append(errs, fmt.Sprintf("state=%s keyword vacía", stateName))
			}
			target(stateName, "keywords", next)
		}
		for id, next := range st.OnSelectNext {
			target(stateName, "on_select_next["+id+"]", next)
		}
		if st.OnTextNext != "" {
			target(stateName, "on_text_next", st.OnTextNext)
		}
		if st.OnErrorNext != "" {
			target(stateName, "on_error_next", st.OnErrorNext)
		}
		if st.Action != "" {
			if _, ok := defaultActions[st.Action]; !ok {
				errs = append(errs, fmt.Sprintf("state=%s acción desconocida: %q", stateName, st.Action))
			}
		}

		if st.HeaderMedia != nil {
			mt := strings.ToLower(strings.TrimSpace(st.HeaderMedia.Type))
			if mt == "" {
				errs = append(errs, fmt.Sprintf("state=%s header_media.type vacío", stateName))
			} else if mt != "image" {
				errs = append(errs, fmt.Sprintf("state=%s header_media.type no soportado: %q", stateName, st.HeaderMedia.Type))
			}
			if strings.TrimSpace(st.HeaderMedia.URL) == "" && strings.TrimSpace(st.HeaderMedia.Path) == "" {
				errs = append(errs, fmt.Sprintf("state=%s header_media requiere url o path", stateName))
			}
		}

		switch st.Type {
		case StateText:
			if strings.TrimSpace(st.Body) == "" {
				errs = append(errs, fmt.Sprintf("state=%s body vacío", stateName))
			}

		case StateInteractiveList:
			if st.List == nil {
				errs = append(errs, fmt.Sprintf("state=%s es interactive_list pero list es nil", stateName))
				continue
			}
			l := st.List
			if runeLen(l.Header) > 60 {
				errs = append(errs, fmt.Sprintf("state=%s header > 60 (%d): %q", stateName, runeLen(l.Header), l.Header))
			}
			if runeLen(l.Footer) > 60 {
				errs = append(errs, fmt.Sprintf("state=%s footer > 60 (%d): %q", stateName, runeLen(l.Footer), l.Footer))
			}
			if runeLen(l.ButtonText) > 20 {
				errs = append(errs, fmt.Sprintf("state=%s button_text > 20 (%d): %q", stateName, runeLen(l.ButtonText), l.ButtonText))
			}
			for _, sec := range l.Sections {
				if runeLen(sec.Title) > 24 {
					errs = append(errs, fmt.Sprintf("state=%s section title > 24 (%d): %q", stateName, runeLen(sec.Title), sec.Title))
				}
				for _, row := range sec.Rows {
					if strings.TrimSpace(row.ID) == "" {
						errs = append(errs, fmt.Sprintf("state=%s row id vacío (title=%q)", stateName, row.Title))
					}
					if runeLen(row.Title) > 24 {
						errs = append(errs, fmt.Sprintf("state=%s row title > 24 (%d): %q", stateName, runeLen(row.Title), row.Title))
					}
					if runeLen(row.Description) > 72 {
						errs = append(errs, fmt.Sprintf("state=%s row desc > 72 (%d): %q", stateName, runeLen(row.Description), row.Description))
					}
				}
			}

		case StateInteractiveButtons:
			if st.Buttons == nil {
				errs = append(errs, fmt.Sprintf("state=%s es interactive_buttons pero buttons es nil", stateName))
				continue
			}
			b := st.Buttons
			if runeLen(b.Header) > 60 {
				errs = append(errs, fmt.Sprintf("state=%s buttons.header > 60 (%d): %q", stateName, runeLen(b.Header), b.Header))
			}
			if runeLen(b.Footer) > 60 {
				errs = append(errs, fmt.Sprintf("state=%s buttons.footer > 60 (%d): %q", stateName, runeLen(b.Footer), b.Footer))
			}
			if len(b.Buttons) == 0 {
				errs = append(errs, fmt.Sprintf("state=%s no tiene buttons (debe tener 1 a 3)", stateName))
				continue
			}
			if len(b.Buttons) > 3 {
				errs = append(errs, fmt.Sprintf("state=%s tiene %d botones (>3)", stateName, len(b.Buttons)))
			}
			for _, btn := range b.Buttons {
				if strings.TrimSpace(btn.ID) == "" {
					errs = append(errs, fmt.Sprintf("state=%s button id vacío (title=%q)", stateName, btn.Title))
				}
				if runeLen(btn.Title) > 20 {
					errs = append(errs, fmt.Sprintf("state=%s button title > 20 (%d): %q", stateName, runeLen(btn.Title), btn.Title))
				}
			}

		default:
			errs = append(errs, fmt.Sprintf("state=%s tipo no soportado: %q", stateName, st.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("template %s inválido:\n- %s", t.Name, strings.Join(errs, "\n- "))
	}
	return nil
}

// ---------------------
// Template cache
// ---------------------

// Templates carga templates de dir bajo demanda y los cachea por nombre.
type Templates struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Template
}

func NewTemplates(dir string) *Templates {
	return &Templates{dir: dir, cache: make(map[string]*Template)}
}

func (c *Templates) Get(name string) (*Template, error) {
	c.mu.RLock()
	t, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	// Nombres de template vienen de la base; no aceptamos rutas.
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("nombre de template inválido: %q", name)
	}

	path := filepath.Join(c.dir, name+".yaml")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = filepath.Join(c.dir, name+".yml")
	}
	t, err := LoadTemplate(path)
	if err != nil {
		return nil, err
	}
	t.Name = name

	c.mu.Lock()
	c.cache[name] = t
	c.mu.Unlock()
	return t, nil
}

// Put registra un template ya parseado (tests, templates embebidos).
func (c *Templates) Put(t *Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[t.Name] = t
}
