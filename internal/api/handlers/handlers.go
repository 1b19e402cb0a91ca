// Package handlers implements the HTTP handlers for the governance control
// plane. Handlers are thin: they decode requests, call the governance store
// or webhook dispatcher, and encode the result.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ghlvoice/control-plane/internal/audit"
	"github.com/ghlvoice/control-plane/internal/governance"
	"github.com/ghlvoice/control-plane/internal/webhook"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Governance *governance.Store
	Webhooks   *webhook.Dispatcher
	Forwarder  *webhook.Forwarder
	// AuditLog is nil when the memory audit sink is disabled.
	AuditLog *audit.MemorySink
}

// New creates a new Handlers instance with all dependencies.
func New(gov *governance.Store, wh *webhook.Dispatcher, fwd *webhook.Forwarder, auditLog *audit.MemorySink) *Handlers {
	return &Handlers{
		Governance: gov,
		Webhooks:   wh,
		Forwarder:  fwd,
		AuditLog:   auditLog,
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
