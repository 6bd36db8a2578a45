package cachingproxy

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ManagementHandler returns the HTTP handler for the management API:
// health, cache statistics and recent access log records. It is served
// on a separate address from the proxy itself.
func (s *Server) ManagementHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/cache/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, s.store.Stats())
	})
	r.Get("/logs", func(w http.ResponseWriter, req *http.Request) {
		if s.alog == nil {
			http.Error(w, "access log disabled", http.StatusNotFound)
			return
		}
		limit := 100
		if q := req.URL.Query().Get("limit"); q != "" {
			if n, err := strconv.Atoi(q); err == nil && n > 0 {
				limit = n
			}
		}
		recs, err := s.alog.Recent(limit)
		if err != nil {
			s.log.Error().Err(err).Msg("Could not read access log")
			http.Error(w, "could not read access log", http.StatusInternalServerError)
			return
		}
		writeJSON(w, recs)
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
