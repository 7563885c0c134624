package v1

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/transaction"
)

type ctxKey string

const (
	ctxKeyRegister         ctxKey = "validatedRegister"
	ctxKeyLogin            ctxKey = "validatedLogin"
	ctxKeyPostTransaction  ctxKey = "validatedPostTransaction"
	ctxKeyListTransactions ctxKey = "validatedListTransactions"
)

// pathID parses the {id} URL parameter, writing 400 when it is not a UUID.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// validateRegister decodes POST /auth/register and checks the required fields.
func (s *Server) validateRegister() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req registerRequest
			if !decode(w, r, &req) {
				return
			}
			if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
				badRequest(w, "email, password and name are required")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyRegister, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateLogin decodes POST /auth/login.
func (s *Server) validateLogin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req loginRequest
			if !decode(w, r, &req) {
				return
			}
			if strings.TrimSpace(req.Email) == "" || req.Password == "" {
				badRequest(w, "email and password are required")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyLogin, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostTransaction decodes POST /transactions into a CreateInput for
// the authenticated user. Business rules stay in the transaction service.
func (s *Server) validatePostTransaction() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postTransactionRequest
			if !decode(w, r, &req) {
				return
			}
			if req.Amount == nil {
				badRequest(w, "amount is required")
				return
			}
			if req.CategoryID == uuid.Nil {
				badRequest(w, "category_id is required")
				return
			}
			typ, ok := ledger.ParseTxType(req.Type)
			if !ok {
				badRequest(w, "type must be income, expense or investment")
				return
			}
			in := transaction.CreateInput{
				UserID:      userID(r),
				CategoryID:  req.CategoryID,
				Type:        typ,
				Amount:      *req.Amount.ptr(),
				Currency:    req.Currency,
				Description: req.Description,
				Source:      ledger.SourceManual,
			}
			// Retries carrying the same key replay the first create.
			in.IdempotencyKey = r.Header.Get("Idempotency-Key")
			if d := req.Date.ptr(); d != nil {
				in.Date = *d
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostTransaction, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseQueryTime(raw string, endOfDay bool) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, true
	}
	return time.Time{}, false
}

// validateListTransactions parses query params for GET /transactions.
func (s *Server) validateListTransactions() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var f ledger.TxFilter
			if raw := q.Get("type"); raw != "" {
				typ, ok := ledger.ParseTxType(raw)
				if !ok {
					badRequest(w, "invalid type")
					return
				}
				f.Type = typ
			}
			if raw := q.Get("category_id"); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					badRequest(w, "invalid category_id")
					return
				}
				f.CategoryID = id
			}
			if raw := q.Get("from"); raw != "" {
				t, ok := parseQueryTime(raw, false)
				if !ok {
					badRequest(w, "invalid from")
					return
				}
				f.From = t
			}
			if raw := q.Get("to"); raw != "" {
				t, ok := parseQueryTime(raw, true)
				if !ok {
					badRequest(w, "invalid to")
					return
				}
				f.To = t
			}
			f.Query = strings.TrimSpace(q.Get("q"))
			switch sort := q.Get("sort"); sort {
			case "", "date":
				f.Sort = ledger.SortDate
			case "amount":
				f.Sort = ledger.SortAmount
			default:
				badRequest(w, "sort must be date or amount")
				return
			}
			switch order := q.Get("order"); order {
			case "", "desc":
			case "asc":
				f.Asc = true
			default:
				badRequest(w, "order must be asc or desc")
				return
			}
			for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
				if raw := q.Get(name); raw != "" {
					n, err := strconv.Atoi(raw)
					if err != nil || n < 0 {
						badRequest(w, "invalid "+name)
						return
					}
					*dst = n
				}
			}
			ctx := context.WithValue(r.Context(), ctxKeyListTransactions, listTransactionsQuery{Filter: f})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
