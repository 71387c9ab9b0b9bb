package server

import (
    "errors"
    "log"
    "net/http"
    "strconv"
    "strings"

    "github.com/go-chi/chi/v5"
    "github.com/google/uuid"

    "shipestimate/internal/quotelog"
)

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request) {
    if s.quotes == nil {
        writeErrorJSON(w, http.StatusNotFound, "not_configured", "quote log not configured")
        return
    }
    q := r.URL.Query()
    zip := strings.TrimSpace(q.Get("zip"))
    if zip != "" && !zipPattern.MatchString(zip) {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", msgZipInvalid)
        return
    }
    limit := 20
    if v := q.Get("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n <= 0 {
            writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
            return
        }
        limit = n
    }

    quotes, err := s.quotes.Recent(r.Context(), zip, limit)
    if err != nil {
        log.Println("list quotes error:", err)
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes})
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
    if s.quotes == nil {
        writeErrorJSON(w, http.StatusNotFound, "not_configured", "quote log not configured")
        return
    }
    id, err := uuid.Parse(chi.URLParam(r, "id"))
    if err != nil {
        writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "invalid quote id")
        return
    }
    quote, err := s.quotes.Get(r.Context(), id)
    if err != nil {
        if errors.Is(err, quotelog.ErrNotFound) {
            writeErrorJSON(w, http.StatusNotFound, "resource_not_found", "not found")
            return
        }
        log.Println("get quote error:", err)
        writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
        return
    }
    writeJSON(w, http.StatusOK, quote)
}
