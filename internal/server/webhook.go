package server

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zytech/internal/whatsapp"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == s.opts.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	s.logger.Warn("verificación de webhook rechazada", zap.String("mode", mode))
	c.Status(http.StatusForbidden)
}

// handleWebhook contesta 200 siempre que el request sea de Meta, aunque el
// payload no sirva: si no, Meta reintenta el mismo lote. El procesamiento
// sigue en background después de responder.
func (s *Server) handleWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		s.logger.Error("no se pudo leer el body", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}
	if len(rawBody) > maxWebhookBody {
		s.logger.Warn("payload demasiado grande", zap.Int("limit", maxWebhookBody), zap.String("ip", c.ClientIP()))
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}

	if s.opts.AppSecret != "" && !whatsapp.ValidSignature(s.opts.AppSecret, rawBody, c.GetHeader(whatsapp.SignatureHeader)) {
		s.logger.Warn("firma inválida en webhook", zap.String("ip", c.ClientIP()))
		c.Status(http.StatusUnauthorized)
		return
	}

	payload, err := whatsapp.ParsePayload(rawBody)
	if err != nil {
		s.logger.Error("ERROR unmarshal", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	inbounds := payload.Inbounds()
	if len(inbounds) > 0 {
		s.logger.Debug(">> POST /webhook", zap.Int("messages", len(inbounds)))
		s.inflight.Add(1)
		go func(ctx context.Context) {
			defer s.inflight.Done()
			s.dispatchAll(ctx, inbounds)
		}(context.WithoutCancel(c.Request.Context()))
	}
	c.Status(http.StatusOK)
}

// dispatchAll procesa un lote. Los mensajes de un mismo contacto van en
// orden; contactos distintos corren en paralelo hasta Workers.
func (s *Server) dispatchAll(ctx context.Context, inbounds []whatsapp.Inbound) {
	var order []string
	groups := make(map[string][]whatsapp.Inbound)
	for _, in := range inbounds {
		key := in.PhoneNumberID + ":" + in.From
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], in)
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for _, key := range order {
		msgs := groups[key]
		g.Go(func() error {
			for _, in := range msgs {
				out, err := s.dispatcher.Handle(ctx, in)
				if err != nil {
					s.logger.Error("ERROR procesando msg",
						zap.String("phone_number_id", in.PhoneNumberID),
						zap.String("wa_id", in.From),
						zap.String("msg_id", in.MessageID),
						zap.Error(err))
					continue
				}
				s.logger.Info("mensaje procesado",
					zap.String("org", out.OrganizationID),
					zap.String("wa_id", in.From),
					zap.String("status", string(out.Status)))
			}
			return nil
		})
	}
	_ = g.Wait()
}
