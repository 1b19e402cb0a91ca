package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ghlvoice/control-plane/pkg/models"
)

// ListAuditRecords returns audit records from the in-memory sink, newest first.
func (h *Handlers) ListAuditRecords(w http.ResponseWriter, r *http.Request) {
	if h.AuditLog == nil {
		respondError(w, http.StatusNotImplemented, "in-memory audit log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := models.AuditFilter{
		SubjectID: q.Get("subject"),
		Action:    q.Get("action"),
		Status:    q.Get("status"),
		Limit:     100,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}
	if v := q.Get("since"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = &ts
		}
	}

	records := h.AuditLog.List(filter)
	if records == nil {
		records = []models.AuditRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   h.AuditLog.Count(filter),
	})
}
