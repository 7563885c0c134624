package v1

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/govalues/decimal"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

// readyz pings every registered store with a short timeout.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	deadline := 800 * time.Millisecond
	ctx, cancel := context.WithTimeout(r.Context(), deadline)
	defer cancel()
	for _, rc := range s.Ready {
		if err := rc.Ready(ctx); err != nil {
			s.log.Warn("readiness check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

type rateResponse struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

// getRates handles GET /v1/rates: units of each currency per one base unit.
func (s *Server) getRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.FX.Rates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	codes := make([]string, 0, len(rates.Values))
	for c := range rates.Values {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	items := make([]rateResponse, 0, len(codes))
	for _, c := range codes {
		items = append(items, rateResponse{Currency: c, Rate: rates.Values[c].String()})
	}
	toJSON(w, http.StatusOK, map[string]any{
		"base":       rates.Base,
		"fetched_at": rates.FetchedAt,
		"items":      items,
	})
}

// convert handles GET /v1/convert?amount=&from=&to=.
func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amt, err := decimal.Parse(q.Get("amount"))
	if err != nil {
		badRequest(w, "invalid amount")
		return
	}
	from, to := strings.ToUpper(q.Get("from")), strings.ToUpper(q.Get("to"))
	if from == "" || to == "" {
		badRequest(w, "from and to are required")
		return
	}
	out, err := s.FX.Convert(r.Context(), amt, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]string{
		"amount":    amt.String(),
		"from":      from,
		"to":        to,
		"converted": out.Round(2).String(),
	})
}
