package handlers

import (
	"net/http"
	"net/url"

	"github.com/ghlvoice/control-plane/internal/webhook"
	"github.com/ghlvoice/control-plane/pkg/models"
	"github.com/go-chi/chi/v5"
)

type registerHandlerRequest struct {
	EventType   string                 `json:"event_type"`
	URL         string                 `json:"url"`
	Secret      string                 `json:"secret"`
	Headers     map[string]string      `json:"headers"`
	Description string                 `json:"description"`
	Condition   string                 `json:"condition"`
	Config      map[string]interface{} `json:"config"`
}

type processEventRequest struct {
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
}

// RegisterWebhookHandler subscribes an external URL to an event type.
func (h *Handlers) RegisterWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var req registerHandlerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		respondError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	res, err := h.Webhooks.OnEvent(r.Context(), webhook.Subscription{
		EventType: req.EventType,
		Handler: h.Forwarder.Handler(webhook.Target{
			URL:     req.URL,
			Secret:  req.Secret,
			Headers: req.Headers,
		}),
		Options: models.HandlerOptions{
			Description: req.Description,
			Condition:   req.Condition,
			Config:      req.Config,
		},
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *Handlers) GetWebhookHandler(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.Webhooks.Get(chi.URLParam(r, "handlerID"))
	if !ok {
		respondError(w, http.StatusNotFound, "handler not found")
		return
	}
	respondJSON(w, http.StatusOK, reg)
}

func (h *Handlers) RemoveWebhookHandler(w http.ResponseWriter, r *http.Request) {
	res := h.Webhooks.RemoveHandler(r.Context(), chi.URLParam(r, "handlerID"))
	status := http.StatusOK
	if res.Status == models.HandlerStatusNotFound {
		status = http.StatusNotFound
	}
	respondJSON(w, status, res)
}

// ProcessWebhookEvent fans an inbound event out to all matching handlers.
// Individual handler failures are reported in the body; the request itself
// succeeds.
func (h *Handlers) ProcessWebhookEvent(w http.ResponseWriter, r *http.Request) {
	var req processEventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	results := h.Webhooks.ProcessEvent(r.Context(), req.EventType, req.Data)
	respondJSON(w, http.StatusOK, results)
}
