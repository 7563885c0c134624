package v1

import (
	"net/http"

	"github.com/tinoosan/fintrack/internal/service/goal"
)

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	gs, err := s.Goals.List(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]goalResponse, 0, len(gs))
	for _, g := range gs {
		out = append(out, toGoalResponse(g))
	}
	toJSON(w, http.StatusOK, map[string]any{"items": out})
}

func toGoalInput(req goalRequest) goal.Input {
	return goal.Input{Name: req.Name, Target: req.Target.ptr(), Deadline: req.Deadline.ptr(), ClearDeadline: req.ClearDeadline}
}

func (s *Server) postGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.Goals.Create(r.Context(), userID(r), toGoalInput(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toGoalResponse(g))
}

func (s *Server) patchGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req goalRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.Goals.Update(r.Context(), userID(r), id, toGoalInput(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toGoalResponse(g))
}

func (s *Server) deleteGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Goals.Delete(r.Context(), userID(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) depositGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Amount == nil {
		badRequest(w, "amount is required")
		return
	}
	g, err := s.Goals.Deposit(r.Context(), userID(r), id, *req.Amount.ptr())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toGoalResponse(g))
}
