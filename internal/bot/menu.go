package bot

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"zytech/internal/models"
)

// Palabras que siempre vuelven al menú, desde cualquier estado.
var resetWords = map[string]bool{
	"menu":   true,
	"inicio": true,
	"0":      true,
	"voltar": true,
}

// Turn es todo lo que un bot necesita para contestar un mensaje.
type Turn struct {
	Org      *models.Organization
	Conv     *models.Conversation
	Template *Template
	Text     string
	// SelectedID es el id de fila/botón si el mensaje fue interactivo.
	SelectedID string
}

type Result struct {
	Reply   *Reply
	Effects Effects
	Tokens  int
}

// MenuBot es la máquina de estados por palabras clave. El estado vive en
// Conversation.State y los datos en Conversation.Data.
type MenuBot struct {
	env           func(t *Turn) *ActionEnv
	actions       map[string]ActionFunc
	publicBaseURL string
	logger        *zap.Logger
}

func NewMenuBot(env func(t *Turn) *ActionEnv, publicBaseURL string, logger *zap.Logger) *MenuBot {
	return &MenuBot{env: env, actions: defaultActions, publicBaseURL: publicBaseURL, logger: logger}
}

// next decide el próximo estado según el input del usuario.
func next(st State, text, selectedID string) (string, bool) {
	norm := normalize(text)
	if resetWords[norm] {
		return models.DefaultState, true
	}

	if selectedID != "" {
		if ns, ok := st.OnSelectNext[selectedID]; ok && ns != "" {
			return ns, true
		}
	}

	if norm != "" && len(st.Keywords) > 0 {
		// Primero match exacto, después frase contenida. Las keywords más
		// largas ganan para que "ver cardapio" no lo agarre "ver".
		keys := make([]string, 0, len(st.Keywords))
		for k := range st.Keywords {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		for _, k := range keys {
			if normalize(k) == norm {
				return st.Keywords[k], true
			}
		}
		for _, k := range keys {
			if containsPhrase(norm, normalize(k)) {
				return st.Keywords[k], true
			}
		}
	}

	if st.OnTextNext != "" && (text != "" || selectedID != "") {
		return st.OnTextNext, true
	}
	return models.DefaultState, false
}

func (b *MenuBot) Respond(ctx context.Context, t *Turn) (*Result, error) {
	tmpl := t.Template
	conv := t.Conv
	if conv.Data == nil {
		conv.Data = make(map[string]string)
	}

	current := conv.State
	st, ok := tmpl.States[current]
	if !ok {
		current = models.DefaultState
		st = tmpl.States[current]
	}

	// Guardamos la selección ANTES de calcular el próximo estado: las acciones la leen.
	if t.SelectedID != "" {
		conv.Data["last_selected_id"] = t.SelectedID
	}

	nextState, handled := next(st, t.Text, t.SelectedID)
	if handled && st.CaptureAs != "" && nextState != models.DefaultState {
		conv.Data[st.CaptureAs] = t.Text
	}
	if !handled {
		b.logger.Debug("input sin transición, vuelve al menú",
			zap.String("template", tmpl.Name), zap.String("state", current), zap.String("text", t.Text))
	}

	vars := map[string]string{
		"name":        firstNonEmpty(conv.ContactName, "cliente"),
		"org_name":    t.Org.Name,
		"org_address": t.Org.Address,
		"org_hours":   t.Org.BusinessHours,
	}
	for k, v := range conv.Data {
		vars[k] = v
	}

	var eff Effects
	target, exists := tmpl.States[nextState]
	if !exists {
		return nil, fmt.Errorf("estado no existe: %s", nextState)
	}

	if target.Action != "" {
		res, err := b.runAction(ctx, t, target.Action)
		if err != nil {
			b.logger.Warn("❌ Error ejecutando acción",
				zap.String("action", target.Action), zap.String("state", nextState), zap.Error(err))
			if target.OnErrorNext != "" {
				nextState = target.OnErrorNext
				target = tmpl.States[nextState]
			}
		} else {
			for k, v := range res.Vars {
				// Disponibles para el render inmediato y persistentes en la
				// conversación. Un valor vacío borra la variable.
				vars[k] = v
				if v == "" {
					delete(conv.Data, k)
				} else {
					conv.Data[k] = v
				}
			}
			eff.merge(res.Effects)
		}
	}

	if target.Handoff {
		eff.Handoff = true
	}

	conv.State = nextState

	reply, err := renderState(target, vars, b.publicBaseURL, t.Org.ID)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", nextState, err)
	}
	return &Result{Reply: reply, Effects: eff}, nil
}

func (b *MenuBot) runAction(ctx context.Context, t *Turn, name string) (*ActionResult, error) {
	fn, found := b.actions[name]
	if !found {
		return nil, fmt.Errorf("acción definida en el template pero no en código: %s", name)
	}
	b.logger.Debug("⚡ Ejecutando acción", zap.String("action", name))
	res, err := fn(ctx, b.env(t))
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &ActionResult{}
	}
	return res, nil
}
