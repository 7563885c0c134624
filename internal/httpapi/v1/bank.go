package v1

import (
	"net/http"
	"strings"
)

// bankEnabled writes 503 when no aggregator is configured.
func (s *Server) bankEnabled(w http.ResponseWriter) bool {
	if s.Bank == nil {
		writeErr(w, http.StatusServiceUnavailable, "bank sync is not configured", "bank_disabled")
		return false
	}
	return true
}

func (s *Server) bankLinkToken(w http.ResponseWriter, r *http.Request) {
	if !s.bankEnabled(w) {
		return
	}
	tok, err := s.Bank.LinkToken(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]string{"link_token": tok})
}

func (s *Server) bankExchange(w http.ResponseWriter, r *http.Request) {
	if !s.bankEnabled(w) {
		return
	}
	var req exchangeRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PublicToken) == "" {
		badRequest(w, "public_token is required")
		return
	}
	if err := s.Bank.Exchange(r.Context(), userID(r), req.PublicToken); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bankSync imports the last N days (default 30). An empty body is allowed.
func (s *Server) bankSync(w http.ResponseWriter, r *http.Request) {
	if !s.bankEnabled(w) {
		return
	}
	var req syncRequest
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}
	rep, err := s.Bank.Sync(r.Context(), userID(r), req.Days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toSyncResponse(rep))
}
