package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zytech/internal/bot"
	"zytech/internal/store"
	"zytech/internal/whatsapp"
)

// Dispatcher procesa un mensaje entrante. *bot.Dispatcher lo implementa.
type Dispatcher interface {
	Handle(ctx context.Context, in whatsapp.Inbound) (*bot.Outcome, error)
}

type Options struct {
	// Production pone gin en release mode.
	Production  bool
	Port        string
	VerifyToken string
	// AppSecret habilita la verificación de X-Hub-Signature-256.
	AppSecret   string
	AdminAPIKey string
	AssetsDir   string
	CORSOrigins []string
	Workers     int
}

type Server struct {
	opts       Options
	store      store.Store
	dispatcher Dispatcher
	logger     *zap.Logger
	router     *gin.Engine

	// Webhooks en proceso; Shutdown espera a que terminen.
	inflight sync.WaitGroup
}

func New(opts Options, st store.Store, d Dispatcher, logger *zap.Logger) *Server {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{opts: opts, store: st, dispatcher: d, logger: logger}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())

	// cors.New entra en pánico sin orígenes.
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", s.handleHealth)

	r.GET("/webhook", s.handleVerify)
	r.POST("/webhook", s.handleWebhook)

	r.GET("/tenants/:tenant/assets/*path", s.handleTenantAssets)

	admin := r.Group("/api", AdminAuth(s.opts.AdminAPIKey))
	{
		admin.GET("/admin/organizations", s.listOrganizations)
		admin.GET("/admin/organizations/:id/usage", s.organizationUsage)

		admin.GET("/orgs/:id/appointments", s.listAppointments)
		admin.GET("/orgs/:id/orders", s.listOrders)
		admin.GET("/orgs/:id/products", s.listProducts)
		admin.GET("/orgs/:id/conversations", s.listConversations)

		admin.GET("/conversations/:id/messages", s.listMessages)
		admin.POST("/conversations/:id/handoff", s.setHandoff)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
		"service":   "zytech",
	})
}

// Run escucha hasta que ctx se cancela y después apaga ordenadamente.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🚀 Webhook escuchando", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("apagando servidor")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.Wait()
	return nil
}

// Wait bloquea hasta que terminen los webhooks en proceso.
func (s *Server) Wait() { s.inflight.Wait() }

// requestLogger reemplaza al logger de gin.Default por uno sobre zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			logger.Warn("request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		logger.Debug("request", fields...)
	}
}
