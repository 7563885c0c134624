package v1

import (
	"net/http"

	"github.com/tinoosan/fintrack/internal/dictionary"
	"github.com/tinoosan/fintrack/internal/ledger"
)

// GET /v1/dictionary/categories?kind=
func (s *Server) getCategoryDictionary(w http.ResponseWriter, r *http.Request) {
	var kind ledger.TxType
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, ok := ledger.ParseTxType(raw)
		if !ok {
			badRequest(w, "invalid kind")
			return
		}
		kind = k
	}
	out := struct {
		Items []dictionary.CategoryDef `json:"items"`
	}{Items: []dictionary.CategoryDef{}}
	for _, def := range dictionary.Defaults() {
		if kind != "" && def.Kind != kind {
			continue
		}
		out.Items = append(out.Items, def)
	}
	toJSON(w, http.StatusOK, out)
}
