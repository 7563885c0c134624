package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/transaction"
)

// postTransaction handles POST /v1/transactions. The response carries the
// updated running balance. A replayed Idempotency-Key answers 200 with the
// original transaction.
func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	in := r.Context().Value(ctxKeyPostTransaction).(transaction.CreateInput)
	res, err := s.Transactions.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	toJSON(w, status, toMutationResponse(res))
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.Context().Value(ctxKeyListTransactions).(listTransactionsQuery)
	page, err := s.Transactions.List(r.Context(), userID(r), q.Filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit := q.Filter.Limit
	if limit == 0 {
		limit = transaction.DefaultLimit
	}
	out := listTransactionsResponse{Items: make([]transactionResponse, 0, len(page.Items)), Total: page.Total, Limit: limit, Offset: q.Filter.Offset}
	for _, t := range page.Items {
		out.Items = append(out.Items, toTransactionResponse(t))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := s.Transactions.Get(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) patchTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req patchTransactionRequest
	if !decode(w, r, &req) {
		return
	}
	p := transaction.Patch{
		CategoryID:  req.CategoryID,
		Amount:      req.Amount.ptr(),
		Currency:    req.Currency,
		Date:        req.Date.ptr(),
		Description: req.Description,
	}
	if req.Type != nil {
		typ, ok := ledger.ParseTxType(*req.Type)
		if !ok {
			badRequest(w, "type must be income, expense or investment")
			return
		}
		p.Type = &typ
	}
	res, err := s.Transactions.Update(r.Context(), userID(r), id, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toMutationResponse(res))
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bal, err := s.Transactions.Delete(r.Context(), userID(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, mutationResponse{Balance: amountStr(bal), BalanceMinor: ledger.MustMinor(bal)})
}

// smartAddTransaction turns free text into a transaction via the assistant.
func (s *Server) smartAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req smartAddRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}
	res, err := s.Assistant.SmartAddTransaction(r.Context(), userID(r), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toMutationResponse(res))
}

// getSummary handles GET /v1/summary?month=YYYY-MM (default: current month).
func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	month := time.Now().UTC()
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := time.Parse("2006-01", raw)
		if err != nil {
			badRequest(w, "month must be YYYY-MM")
			return
		}
		month = m
	}
	sum, err := s.Transactions.MonthSummary(r.Context(), userID(r), month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toSummaryResponse(sum))
}
