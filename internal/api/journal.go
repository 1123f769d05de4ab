package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/airlink/internal/journal"
)

// handleListJournal returns journal entries newest first.
// Query parameters: kind (optional filter) and limit.
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "journal is disabled")
		return
	}

	q := journal.Query{
		Serial: s.device.Profile().Serial,
		Kind:   r.URL.Query().Get("kind"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}

	entries, err := s.journal.List(r.Context(), q)
	if err != nil {
		s.logger.Error("listing journal", "error", err)
		writeInternalError(w, "failed to read journal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
