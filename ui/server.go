// Package ui exposes the matching pipeline over HTTP.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gomatch/adapters/excel"
	"gomatch/adapters/report"
	"gomatch/app"
	"gomatch/domain/core"
	"gomatch/domain/matching"
	"gomatch/internal"
	"gomatch/ports"
)

// App wires the HTTP routes to the matching service and run repository.
type App struct {
	router  *chi.Mux
	service *app.MatchService
	repo    ports.RunRepositoryPort
	report  *report.Builder
	logger  *internal.Logger
}

// NewApp creates the HTTP application
func NewApp(service *app.MatchService, repo ports.RunRepositoryPort, logger *internal.Logger) *App {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	a := &App{
		router:  chi.NewRouter(),
		service: service,
		repo:    repo,
		report:  report.NewBuilder(),
		logger:  logger,
	}
	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// Router returns the configured handler
func (a *App) Router() http.Handler {
	return a.router
}

// Start runs the HTTP server on the given port
func (a *App) Start(port string) error {
	a.logger.Info("listening on :%s", port)
	return http.ListenAndServe(":"+port, a.router)
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

func (a *App) setupRoutes() {
	a.router.Get("/health", a.handleHealth)

	a.router.Post("/api/runs", a.handleCreateRun)
	a.router.Get("/api/runs", a.handleListRuns)
	a.router.Get("/api/runs/{id}", a.handleGetRun)
	a.router.Get("/api/runs/{id}/report", a.handleRunReport)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateRun accepts a multipart cohort table plus schema fields,
// runs the pipeline, and returns the run artifact.
func (a *App) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	schema, err := schemaFromForm(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	path, cleanup, err := spoolUpload(file, header.Filename)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer cleanup()

	cohort, err := excel.NewDataReader(path, schema, a.logger).LoadCohort(r.Context())
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	artifact, err := a.service.Run(r.Context(), cohort)
	if err != nil {
		status := http.StatusInternalServerError
		if core.IsIngestionError(err) || core.IsMatchingError(err) {
			status = http.StatusUnprocessableEntity
		}
		a.writeError(w, status, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, artifact)
}

func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	summaries, err := a.repo.ListRecent(r.Context(), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if summaries == nil {
		summaries = []ports.RunSummary{}
	}
	a.writeJSON(w, http.StatusOK, summaries)
}

func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}

func (a *App) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(a.report.HTML(run))
}

func (a *App) loadRun(w http.ResponseWriter, r *http.Request) (*matching.RunArtifact, bool) {
	id := chi.URLParam(r, "id")
	run, err := a.repo.GetByID(r.Context(), core.RunID(id))
	if err != nil {
		if core.IsNotFoundError(err) {
			a.writeError(w, http.StatusNotFound, err)
		} else {
			a.writeError(w, http.StatusInternalServerError, err)
		}
		return nil, false
	}
	return run, true
}

// schemaFromForm extracts the column mapping from form fields
func schemaFromForm(r *http.Request) (ports.SubjectSchema, error) {
	schema := ports.SubjectSchema{
		IDColumn:        formValueOrDefault(r, "id_col", "id"),
		TreatmentColumn: formValueOrDefault(r, "treatment_col", "treated"),
		OutcomeColumn:   formValueOrDefault(r, "outcome_col", "outcome"),
		TimeColumn:      r.FormValue("time_col"),
	}
	raw := r.FormValue("covariates")
	if raw == "" {
		return schema, fmt.Errorf("covariates field is required")
	}
	for _, col := range strings.Split(raw, ",") {
		col = strings.TrimSpace(col)
		if col != "" {
			schema.CovariateCols = append(schema.CovariateCols, col)
		}
	}
	if len(schema.CovariateCols) == 0 {
		return schema, fmt.Errorf("covariates field is required")
	}
	return schema, nil
}

func formValueOrDefault(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}

// spoolUpload writes the upload to a temp file so the reader can sniff
// the format from the extension.
func spoolUpload(src io.Reader, filename string) (string, func(), error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".csv"
	}
	tmp, err := os.CreateTemp("", "cohort-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// The status line is already on the wire; all we can do is log.
		a.logger.Error("failed to encode response: %v", err)
	}
}

func (a *App) writeError(w http.ResponseWriter, status int, err error) {
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}
