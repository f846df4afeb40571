package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zytech/internal/bot"
	"zytech/internal/calendar"
	"zytech/internal/config"
	"zytech/internal/llm"
	"zytech/internal/logging"
	"zytech/internal/server"
	"zytech/internal/store"
	"zytech/internal/whatsapp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Levanta el webhook y la API admin",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuración inválida:\n%w", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return fmt.Errorf("no pude crear logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE inválido %q: %w", cfg.Timezone, err)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var completer llm.Completer
	if cfg.GeminiAPIKey != "" {
		g, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return err
		}
		completer = g
	} else {
		logger.Warn("⚠️ GEMINI_API_KEY vacío: los templates llm van a contestar con error")
	}

	var scheduler bot.Scheduler
	if cfg.GoogleCredentialsFile != "" {
		svc, err := calendar.NewService(ctx, cfg.GoogleCredentialsFile, loc)
		if err != nil {
			logger.Warn("⚠️ Google Calendar no disponible, se usan los turnos guardados", zap.Error(err))
		} else {
			scheduler = svc
		}
	}

	var sender bot.Sender
	if cfg.WhatsAppToken != "" {
		wa, err := whatsapp.NewClient(whatsapp.ClientConfig{
			Token:   cfg.WhatsAppToken,
			APIBase: cfg.WhatsAppAPIBase,
			Env:     cfg.AppEnv,
			ForceTo: cfg.WhatsAppForceTo,
		}, logger)
		if err != nil {
			return err
		}
		sender = wa
	} else {
		logger.Warn("⚠️ WHATSAPP_TOKEN vacío: las respuestas sólo se loguean")
		sender = whatsapp.NewLogSender(logger)
	}

	templates := bot.NewTemplates(cfg.TemplatesDir)
	loaded, err := bot.LoadDir(cfg.TemplatesDir)
	if err != nil {
		// Un template roto no tumba al resto; el tenant afectado recibe la disculpa.
		logger.Error("❌ templates con errores", zap.Error(err))
	}
	for _, t := range loaded {
		templates.Put(t)
	}
	logger.Info("templates cargados", zap.Int("count", len(loaded)), zap.String("dir", cfg.TemplatesDir))

	dispatcher := bot.NewDispatcher(bot.DispatcherConfig{
		Store:         st,
		Templates:     templates,
		LLM:           bot.NewLLMBot(completer, st, cfg.HistoryWindow, loc, logger),
		Sender:        sender,
		Scheduler:     scheduler,
		Location:      loc,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	})

	if cfg.AdminAPIKey == "" {
		logger.Warn("⚠️ ADMIN_API_KEY vacío: la API admin rechaza todo")
	}

	srv := server.New(server.Options{
		Production:  cfg.IsProd(),
		Port:        cfg.Port,
		VerifyToken: cfg.VerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
		AdminAPIKey: cfg.AdminAPIKey,
		AssetsDir:   cfg.AssetsDir,
		CORSOrigins: cfg.CORSOrigins,
		Workers:     cfg.WebhookWorkers,
	}, st, dispatcher, logger)

	return srv.Run(ctx)
}

// openStore usa Postgres si hay DATABASE_URL. Sin base (sólo dev) arranca en
// memoria con el seed, si existe.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("✅ Postgres conectado")
		return pg, nil
	}

	mem := store.NewMemory()
	seed, err := store.LoadSeed(cfg.SeedFile)
	switch {
	case err == nil:
		seed.Apply(mem)
		logger.Info("store en memoria con seed", zap.String("file", cfg.SeedFile), zap.Int("organizations", len(seed.Organizations)))
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("store en memoria vacío: no hay seed", zap.String("file", cfg.SeedFile))
	default:
		return nil, err
	}
	return mem, nil
}
