package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Turn struct {
	Role Role
	Text string
}

type Request struct {
	System      string
	History     []Turn
	Temperature float32
}

type Completion struct {
	Text   string
	Tokens int
}

// Completer es una llamada de completion. Los bots dependen de esto y no de genai.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Gemini implementa Completer con la API de Google GenAI.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY es requerido")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	logger.Info("Servicio Gemini inicializado", zap.String("model", model))
	return &Gemini{client: client, model: model, timeout: 30 * time.Second, logger: logger}, nil
}

func (g *Gemini) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(req.History))
	for _, t := range req.History {
		role := genai.RoleUser
		if t.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, genai.Role(role)))
	}
	if len(contents) == 0 {
		return nil, errors.New("no hay mensajes para enviar al modelo")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, generateConfig(req))
	if err != nil {
		return nil, fmt.Errorf("error al generar respuesta: %w", err)
	}

	out := &Completion{Text: strings.TrimSpace(resp.Text())}
	if resp.UsageMetadata != nil {
		out.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	g.logger.Debug("completion generada", zap.Int("tokens", out.Tokens), zap.Int("turns", len(contents)))
	return out, nil
}

// generateConfig deja la temperatura del modelo cuando el template no fija una.
func generateConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}
