package v1

import (
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/tinoosan/fintrack/internal/service/portfolio"
)

func (s *Server) listPortfolios(w http.ResponseWriter, r *http.Request) {
	ds, err := s.Portfolios.List(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]portfolioResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, toPortfolioResponse(d))
	}
	toJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) getPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.Portfolios.Get(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toPortfolioResponse(d))
}

func (s *Server) postPortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.Portfolios.Create(r.Context(), userID(r), portfolio.PortfolioInput(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toPortfolioResponse(portfolio.Detail{Portfolio: p}))
}

func (s *Server) patchPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req portfolioRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.Portfolios.Update(r.Context(), userID(r), id, portfolio.PortfolioInput(req)); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.Portfolios.Get(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toPortfolioResponse(d))
}

// deletePortfolio removes the portfolio together with its holdings.
func (s *Server) deletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Portfolios.Delete(r.Context(), userID(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req holdingRequest
	if !decode(w, r, &req) {
		return
	}
	h, err := s.Portfolios.AddHolding(r.Context(), userID(r), id, portfolio.HoldingInput(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toHoldingResponse(h))
}

func (s *Server) smartAddHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req smartAddRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}
	h, err := s.Assistant.SmartAddHolding(r.Context(), userID(r), id, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toHoldingResponse(h))
}

// refreshPortfolio pulls current quotes for every holding and records them
// in the price history.
func (s *Server) refreshPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, rep, err := s.Portfolios.Refresh(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	failed := rep.Failed
	if failed == nil {
		failed = []string{}
	}
	toJSON(w, http.StatusOK, refreshResponse{Portfolio: toPortfolioResponse(d), Updated: rep.Updated, Failed: failed})
}

func (s *Server) patchHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req holdingPatchRequest
	if !decode(w, r, &req) {
		return
	}
	h, err := s.Portfolios.UpdateHolding(r.Context(), userID(r), id, portfolio.HoldingPatch(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toHoldingResponse(h))
}

func (s *Server) deleteHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.Portfolios.DeleteHolding(r.Context(), userID(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getPriceHistory handles GET /v1/prices/{symbol}?limit=.
func (s *Server) getPriceHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	pts, err := s.Portfolios.PriceHistory(r.Context(), userID(r), chi.URLParam(r, "symbol"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]pricePointResponse, 0, len(pts))
	for _, p := range pts {
		out = append(out, pricePointResponse{Price: p.Price.String(), At: p.At})
	}
	toJSON(w, http.StatusOK, map[string]any{"items": out})
}
