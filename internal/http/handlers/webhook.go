package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lineflow-backend/internal/http/response"
	"github.com/yungbote/lineflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/services"
)

// webhookBody is the subset of the LINE webhook payload the router reads.
type webhookBody struct {
	Destination string         `json:"destination"`
	Events      []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type            string `json:"type"`
	Timestamp       int64  `json:"timestamp"`
	WebhookEventID  string `json:"webhookEventId"`
	ReplyToken      string `json:"replyToken"`
	DeliveryContext struct {
		IsRedelivery bool `json:"isRedelivery"`
	} `json:"deliveryContext"`
	Source struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	} `json:"source"`
	Message *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message,omitempty"`
	Postback *struct {
		Data string `json:"data"`
	} `json:"postback,omitempty"`
}

type WebhookHandler struct {
	log     *logger.Logger
	router  services.EventRouter
	timeout time.Duration
}

func NewWebhookHandler(log *logger.Logger, router services.EventRouter, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &WebhookHandler{log: log.With("handler", "WebhookHandler"), router: router, timeout: timeout}
}

// POST /webhook
// Always answers 200 once the signature passed; the platform would otherwise
// redeliver events whose failure was already logged.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var body webhookBody
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		h.log.Warn("malformed webhook body", append(ctxutil.LogFields(c.Request.Context()), "error", err)...)
		response.RespondOK(c, gin.H{"status": "ok"})
		return
	}

	events := toEvents(body.Events)
	if len(events) > 0 {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.timeout)
		defer cancel()
		if err := h.router.DispatchBatch(ctx, events); err != nil {
			h.log.Error("webhook dispatch failed", append(ctxutil.LogFields(ctx), "events", len(events), "error", err)...)
		}
	}
	response.RespondOK(c, gin.H{"status": "ok"})
}

func toEvents(in []webhookEvent) []services.Event {
	out := make([]services.Event, 0, len(in))
	for _, e := range in {
		ev := services.Event{
			ID:         strings.TrimSpace(e.WebhookEventID),
			Type:       services.EventType(e.Type),
			SourceID:   strings.TrimSpace(e.Source.UserID),
			ReplyToken: e.ReplyToken,
		}
		if e.Timestamp > 0 {
			ev.Timestamp = time.UnixMilli(e.Timestamp).UTC()
		}
		if e.Message != nil && e.Message.Type == "text" {
			ev.Text = e.Message.Text
		}
		if e.Postback != nil {
			ev.Postback = e.Postback.Data
		}
		out = append(out, ev)
	}
	return out
}
