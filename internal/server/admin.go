package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zytech/internal/models"
	"zytech/internal/store"
)

const (
	defaultUsageDays    = 30
	maxUsageDays        = 365
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

// fail traduce errores del store a respuestas HTTP.
func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.logger.Error("error en API admin", zap.String("path", c.FullPath()), zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// queryInt lee un entero positivo de la query, con default y tope.
func queryInt(c *gin.Context, key string, def, maxVal int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " debe ser un entero positivo"})
		return 0, false
	}
	return min(n, maxVal), true
}

// org carga la organización del path o responde 404.
func (s *Server) org(c *gin.Context) (*models.Organization, bool) {
	org, err := s.store.Organization(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return org, true
}

// ---------------------
// Organizaciones
// ---------------------

func (s *Server) listOrganizations(c *gin.Context) {
	orgs, err := s.store.ListOrganizations(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs, "count": len(orgs)})
}

func (s *Server) organizationUsage(c *gin.Context) {
	days, ok := queryInt(c, "days", defaultUsageDays, maxUsageDays)
	if !ok {
		return
	}
	org, ok := s.org(c)
	if !ok {
		return
	}
	since := time.Now().AddDate(0, 0, -days)
	usage, err := s.store.Usage(c.Request.Context(), org.ID, since)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// ---------------------
// Datos por organización
// ---------------------

func (s *Server) listAppointments(c *gin.Context) {
	org, ok := s.org(c)
	if !ok {
		return
	}
	appts, err := s.store.ListAppointments(c.Request.Context(), org.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appts, "count": len(appts)})
}

func (s *Server) listOrders(c *gin.Context) {
	org, ok := s.org(c)
	if !ok {
		return
	}
	orders, err := s.store.ListOrders(c.Request.Context(), org.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (s *Server) listProducts(c *gin.Context) {
	org, ok := s.org(c)
	if !ok {
		return
	}
	products, err := s.store.ListProducts(c.Request.Context(), org.ID, c.Query("available") == "true")
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (s *Server) listConversations(c *gin.Context) {
	org, ok := s.org(c)
	if !ok {
		return
	}
	convs, err := s.store.ListConversations(c.Request.Context(), org.ID, c.Query("needs_human") == "true")
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
}

// ---------------------
// Conversaciones
// ---------------------

func (s *Server) listMessages(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultMessageLimit, maxMessageLimit)
	if !ok {
		return
	}
	conv, err := s.store.ConversationByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	msgs, err := s.store.RecentMessages(c.Request.Context(), conv.ID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": msgs, "count": len(msgs)})
}

type handoffRequest struct {
	NeedsHuman *bool `json:"needs_human" binding:"required"`
}

// setHandoff toma (true) o devuelve al bot (false) una conversación.
func (s *Server) setHandoff(c *gin.Context) {
	var req handoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body inválido: se espera {\"needs_human\": bool}"})
		return
	}
	id := c.Param("id")
	if err := s.store.SetNeedsHuman(c.Request.Context(), id, *req.NeedsHuman); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("🙋 handoff actualizado", zap.String("conv", id), zap.Bool("needs_human", *req.NeedsHuman))
	c.JSON(http.StatusOK, gin.H{"id": id, "needs_human": *req.NeedsHuman})
}
