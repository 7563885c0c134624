package v1

import (
	"net/http"
	"strconv"
	"strings"
)

// getChat returns the caller's conversation, oldest first.
func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	msgs, err := s.Assistant.History(r.Context(), userID(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]chatMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toChatMessageResponse(m))
	}
	toJSON(w, http.StatusOK, map[string]any{"items": out})
}

// postChat sends a message to the assistant. Any action block in the reply
// is applied before the cleaned reply is returned.
func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(w, "message is required")
		return
	}
	reply, err := s.Assistant.Send(r.Context(), userID(r), req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toChatReplyResponse(reply))
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.Assistant.Clear(r.Context(), userID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getInsights(w http.ResponseWriter, r *http.Request) {
	text, err := s.Assistant.Insights(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]string{"insights": text})
}
