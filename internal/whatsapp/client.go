package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ClientConfig agrupa lo que necesita el cliente de la Cloud API.
type ClientConfig struct {
	Token   string
	APIBase string // ej: https://graph.facebook.com/v24.0
	Env     string
	ForceTo string
	HTTP    *http.Client
}

// Client habla con la WhatsApp Cloud API. Es compartido entre tenants: el
// phone_number_id emisor va en cada envío.
type Client struct {
	token   string
	apiBase string
	env     string
	forceTo string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("WHATSAPP_TOKEN no seteado")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://graph.facebook.com/v24.0"
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 15 * time.Second}
	}
	// El force-to es sólo para probar en dev.
	if cfg.Env != "dev" {
		cfg.ForceTo = ""
	}
	return &Client{
		token:   cfg.Token,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		env:     cfg.Env,
		forceTo: cfg.ForceTo,
		http:    cfg.HTTP,
		logger:  logger,
	}, nil
}

// NormalizeRecipient ajusta el número para la Cloud API.
// Fuera de prod, el wa_id argentino viene como 549XXXXXXXXXX pero la allowed list
// de Meta espera 54XXXXXXXXXX (sin el 9).
func NormalizeRecipient(env, to string) string {
	to = strings.TrimSpace(to)
	to = strings.TrimPrefix(to, "+")
	if env == "prod" {
		return to
	}
	if strings.HasPrefix(to, "549") && len(to) > 3 {
		return "54" + to[3:]
	}
	return to
}

func (c *Client) recipient(to string) string {
	if c.forceTo != "" {
		c.logger.Warn("⚠️ WHATSAPP_FORCE_TO activo", zap.String("to_original", to), zap.String("to_forzado", c.forceTo))
		to = c.forceTo
	}
	return NormalizeRecipient(c.env, to)
}

func (c *Client) SendText(ctx context.Context, phoneNumberID, to, body string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                c.recipient(to),
		"type":              "text",
		"text": map[string]any{
			"body": body,
		},
	}
	return c.post(ctx, phoneNumberID, payload)
}

func (c *Client) SendList(ctx context.Context, phoneNumberID, to, headerText, headerImageURL, body, footer, buttonText string, sections []Section) error {
	interactive := map[string]any{
		"type": "list",
		"body": map[string]any{
			"text": body,
		},
		"action": map[string]any{
			"button":   buttonText,
			"sections": sections,
		},
	}
	decorate(interactive, headerText, headerImageURL, footer)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                c.recipient(to),
		"type":              "interactive",
		"interactive":       interactive,
	}
	return c.post(ctx, phoneNumberID, payload)
}

func (c *Client) SendButtons(ctx context.Context, phoneNumberID, to, headerText, headerImageURL, body, footer string, buttons []Button) error {
	waButtons := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		waButtons = append(waButtons, map[string]any{
			"type": "reply",
			"reply": map[string]any{
				"id":    b.ID,
				"title": b.Title,
			},
		})
	}

	interactive := map[string]any{
		"type": "button",
		"body": map[string]any{
			"text": body,
		},
		"action": map[string]any{
			"buttons": waButtons,
		},
	}
	decorate(interactive, headerText, headerImageURL, footer)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                c.recipient(to),
		"type":              "interactive",
		"interactive":       interactive,
	}
	return c.post(ctx, phoneNumberID, payload)
}

// decorate agrega header (imagen tiene prioridad sobre texto) y footer.
func decorate(interactive map[string]any, headerText, headerImageURL, footer string) {
	if strings.TrimSpace(headerImageURL) != "" {
		interactive["header"] = map[string]any{
			"type": "image",
			"image": map[string]any{
				"link": headerImageURL,
			},
		}
	} else if strings.TrimSpace(headerText) != "" {
		interactive["header"] = map[string]any{
			"type": "text",
			"text": headerText,
		}
	}
	if strings.TrimSpace(footer) != "" {
		interactive["footer"] = map[string]any{
			"text": footer,
		}
	}
}

func (c *Client) post(ctx context.Context, phoneNumberID string, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", c.apiBase, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error enviando a Meta: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("respuesta no OK de Meta: %s - %s", resp.Status, string(body))
	}
	c.logger.Debug("✅ Enviado OK", zap.String("phone_number_id", phoneNumberID), zap.ByteString("resp", body))
	return nil
}
