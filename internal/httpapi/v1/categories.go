package v1

import (
	"net/http"

	"github.com/tinoosan/fintrack/internal/service/category"
)

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.Categories.List(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryResponse(c))
	}
	toJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) postCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.Categories.Create(r.Context(), userID(r), category.Input(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toCategoryResponse(c))
}

func (s *Server) patchCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.Categories.Update(r.Context(), userID(r), id, category.Input(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toCategoryResponse(c))
}

// deleteCategory answers 409 while transactions still reference the category.
func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Categories.Delete(r.Context(), userID(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
