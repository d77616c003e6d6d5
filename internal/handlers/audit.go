package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cmpc-libros/apiserver/internal/middleware"
	"github.com/cmpc-libros/apiserver/internal/services"
	"github.com/cmpc-libros/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// AuditListResponse is one page of audit entries, newest first.
type AuditListResponse struct {
	Data   []types.AuditEntry `json:"data"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// AuditHandler exposes the audit trail for inspection.
type AuditHandler struct {
	auditService *services.AuditService
}

func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// AuditRouter registers audit routes on the given router. Reads of the
// trail are themselves recorded.
func AuditRouter(r chi.Router, auditService *services.AuditService, auditor *middleware.Auditor, requireAuth func(http.Handler) http.Handler) {
	handler := NewAuditHandler(auditService)
	r.With(requireAuth, auditor.Action("audit.list")).Get("/", handler.ListEntries)
}

func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	offset := 0

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
		if limit > maxAuditLimit {
			limit = maxAuditLimit
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = parsed
	}

	entries, err := h.auditService.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []types.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, AuditListResponse{Data: entries, Limit: limit, Offset: offset})
}
