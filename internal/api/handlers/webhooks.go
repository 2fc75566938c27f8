package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/webhook"
)

// WebhookTester is the part of *webhook.Sender the API needs.
type WebhookTester interface {
	Endpoints() []config.WebhookEndpoint
	Test(ctx context.Context, name string) error
}

type TestWebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type WebhookHandler struct {
	sender WebhookTester
}

func NewWebhookHandler(sender WebhookTester) *WebhookHandler {
	return &WebhookHandler{sender: sender}
}

func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	endpoints := h.sender.Endpoints()
	responses := make([]WebhookSettings, 0, len(endpoints))
	for _, ep := range endpoints {
		responses = append(responses, webhookSettings(ep))
	}
	c.JSON(http.StatusOK, responses)
}

// TestWebhook sends a signed test event to one endpoint and reports the
// outcome. Delivery failures are reported in the body, not the status.
func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	name := c.Param("name")
	err := h.sender.Test(c.Request.Context(), name)
	if errors.Is(err, webhook.ErrUnknownEndpoint) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: fmt.Sprintf("Webhook %q is not configured", name),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusOK, TestWebhookResponse{
			Success: false,
			Message: fmt.Sprintf("Webhook test failed: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, TestWebhookResponse{Success: true, Message: "Webhook test successful"})
}

func webhookSettings(ep config.WebhookEndpoint) WebhookSettings {
	events := ep.Events
	if events == nil {
		events = []string{}
	}
	return WebhookSettings{
		Name:   ep.Name,
		URL:    ep.URL,
		Events: events,
		Signed: ep.Secret != "",
	}
}

func RegisterWebhookRoutes(r *gin.RouterGroup, h *WebhookHandler) {
	r.GET("/webhooks", h.ListWebhooks)
	r.POST("/webhooks/:name/test", h.TestWebhook)
}
