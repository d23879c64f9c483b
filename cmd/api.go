package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pursuit-cli/internal/conflict"
	"github.com/sells-group/pursuit-cli/internal/controller"
	"github.com/sells-group/pursuit-cli/internal/history"
	"github.com/sells-group/pursuit-cli/internal/model"
	"github.com/sells-group/pursuit-cli/internal/ranker"
	"github.com/sells-group/pursuit-cli/internal/store"
)

// apiServer exposes the job controller, history ledger, conflict resolver,
// and reference ranker over HTTP.
type apiServer struct {
	store      store.Store
	controller *controller.Controller
	ranker     *ranker.Ranker

	// base scopes started jobs to the server's lifetime rather than the
	// request's: a 202 response must not tear down polling.
	base context.Context
}

func newRouter(api *apiServer, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/pursuits/{id}", func(r chi.Router) {
		r.Post("/jobs/{kind}", api.startJob)
		r.Get("/history/{kind}", api.getHistory)
		r.Get("/conflicts", api.listConflicts)
		r.Post("/conflicts/resolve", api.resolveConflict)
		r.Post("/rank", api.rankReferences)
		r.Get("/selection", api.getSelection)
		r.Put("/selection", api.putSelection)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *apiServer) startJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	kind := model.JobKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, eris.Errorf("unknown job kind %q", kind))
		return
	}

	var payload map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	// The run outlives the request: polling continues in the background and
	// the outcome lands in the record's history.
	states, err := s.controller.Run(s.base, id, kind, payload)
	if err != nil {
		if eris.Is(err, controller.ErrAlreadyRunning) {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "already_running"})
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	go func() {
		for state := range states {
			if state.State.Terminal() {
				zap.L().Info("api: job finished",
					zap.String("pursuit", id),
					zap.String("kind", string(kind)),
					zap.String("state", string(state.State)))
			}
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *apiServer) getHistory(w http.ResponseWriter, r *http.Request) {
	kind := model.JobKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, eris.Errorf("unknown job kind %q", kind))
		return
	}
	entries, err := s.controller.History(r.Context(), chi.URLParam(r, "id"), kind)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"totals":  history.Reduce(entries),
	})
}

func (s *apiServer) listConflicts(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPursuit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	res, err := conflict.New(s.store, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": res.Pending()})
}

func (s *apiServer) resolveConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		Keep  string `json:"keep"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Field == "" {
		writeError(w, http.StatusBadRequest, eris.New("body must be {\"field\": ..., \"keep\": \"current\"|\"baseline\"}"))
		return
	}
	if req.Keep != "current" && req.Keep != "baseline" {
		writeError(w, http.StatusBadRequest, eris.Errorf("keep must be current or baseline, got %q", req.Keep))
		return
	}

	p, err := s.store.GetPursuit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	res, err := conflict.New(s.store, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := res.Resolve(r.Context(), req.Field, req.Keep == "current"); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": res.Pending()})
}

func (s *apiServer) rankReferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target, err := s.store.GetPursuit(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	candidates, err := s.store.ListReferences(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ranked, err := s.ranker.Rank(ctx, target, candidates)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ranked": ranked})
}

func (s *apiServer) getSelection(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPursuit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	sel, err := p.State.SelectedReferences()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sel == nil {
		sel = &model.SelectedReferences{PursuitIDs: []string{}, Components: map[string][]string{}}
	}
	writeJSON(w, http.StatusOK, sel)
}

func (s *apiServer) putSelection(w http.ResponseWriter, r *http.Request) {
	var sel model.SelectedReferences
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode selection"))
		return
	}
	// Round-trip the payload through a Selection so component entries for
	// records missing from the id list select their parent before the shape
	// is persisted.
	normalized := ranker.LoadSelection(&sel).Serialize()
	if _, err := s.store.SavePursuit(r.Context(), chi.URLParam(r, "id"), map[string]any{
		"state": map[string]any{
			model.StateKeySelectedReferences: normalized,
		},
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, normalized)
}
