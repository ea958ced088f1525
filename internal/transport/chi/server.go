// Package chi serves the Clarity REST surface from a lims.API, so that a
// client under test can point at a player (or a recorder) instead of a
// real server.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/lims"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
	healthuc "github.com/kailas-cloud/clarityreplay/internal/usecase/health"
	"github.com/kailas-cloud/clarityreplay/internal/transport/clarity"
)

// maxBodyBytes caps request documents.
const maxBodyBytes = 16 << 20

// Paging parameters of list calls. Every other query parameter is a search
// term.
const (
	paramStartIndex = "start-index"
	paramCount      = "count"
)

// defaultCount is the page size when only start-index is given.
const defaultCount = 500

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes a lims.API over HTTP.
type Server struct {
	api           lims.API
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(api lims.API, health *healthuc.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		api:    api,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		clarityErrorHandler,
		noRecordingHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrUnknownKind, http.StatusNotFound),
		sentinelHandler(domain.ErrInvalidURI, http.StatusBadRequest),
		sentinelHandler(domain.ErrWriteBlocked, http.StatusForbidden),
	}
	return s
}

// Register mounts the routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api/v2/{kind}", func(r chi.Router) {
		r.Get("/", s.List)
		r.Post("/", s.Create)
		r.Get("/{id}", s.Get)
		r.Put("/{id}", s.Update)
		r.Delete("/{id}", s.Delete)
	})
}

// Handler returns a router serving every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

// List handles GET /api/v2/{kind}: a search when search terms are given,
// a page when start-index or count is given, the full list otherwise.
func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	k, ok := s.kindParam(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := searchParams(query)

	var (
		links []entity.Link
		err   error
	)
	switch {
	case len(params) > 0:
		links, err = s.api.Find(r.Context(), k, params)
	case query.Has(paramStartIndex) || query.Has(paramCount):
		start, count := 0, defaultCount
		if err := runtime.BindQueryParameter("form", true, false, paramStartIndex, query, &start); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+paramStartIndex+": "+err.Error())
			return
		}
		if err := runtime.BindQueryParameter("form", true, false, paramCount, query, &count); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+paramCount+": "+err.Error())
			return
		}
		links, err = s.api.ListSome(r.Context(), k, start, count)
	default:
		links, err = s.api.ListAll(r.Context(), k)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	body, err := entity.EncodeBatch(k, links)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeXML(w, http.StatusOK, body)
}

// Get handles GET /api/v2/{kind}/{id}.
func (s *Server) Get(w http.ResponseWriter, r *http.Request) {
	k, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	e, err := s.api.Load(r.Context(), k, chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeXML(w, http.StatusOK, e.Raw())
}

// Create handles POST /api/v2/{kind}.
func (s *Server) Create(w http.ResponseWriter, r *http.Request) {
	k, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	e, ok := s.readEntity(w, r, k, "")
	if !ok {
		return
	}
	created, err := s.api.Create(r.Context(), e)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if created.URI() != "" {
		w.Header().Set("Location", created.URI())
	}
	writeXML(w, http.StatusCreated, created.Raw())
}

// Update handles PUT /api/v2/{kind}/{id}.
func (s *Server) Update(w http.ResponseWriter, r *http.Request) {
	k, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	e, ok := s.readEntity(w, r, k, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	updated, err := s.api.Update(r.Context(), e)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeXML(w, http.StatusOK, updated.Raw())
}

// Delete handles DELETE /api/v2/{kind}/{id}.
func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	k, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	e := entity.Reconstruct(k, "", chi.URLParam(r, "id"), "", nil)
	if err := s.api.Delete(r.Context(), e); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: report.Status, Checks: report.Checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) kindParam(w http.ResponseWriter, r *http.Request) (kind.Kind, bool) {
	name := chi.URLParam(r, "kind")
	k, ok := kind.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown resource: %s", name))
		return kind.Kind{}, false
	}
	return k, true
}

// readEntity reads the request document. Documents without uri or limsid
// (a new entity) are accepted as they are and take id from the path.
func (s *Server) readEntity(w http.ResponseWriter, r *http.Request, k kind.Kind, id string) (entity.Entity, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return entity.Entity{}, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "Request body is required")
		return entity.Entity{}, false
	}
	e, err := entity.Parse(k, body)
	switch {
	case errors.Is(err, entity.ErrUnidentified):
		return entity.Reconstruct(k, "", id, "", body), true
	case err != nil:
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return entity.Entity{}, false
	}
	return e, true
}

// searchParams returns the query parameters that are search terms.
func searchParams(query url.Values) search.Params {
	params := search.Params{}
	for name, values := range query {
		if name == paramStartIndex || name == paramCount {
			continue
		}
		params[name] = append([]string(nil), values...)
	}
	return params
}

func writeXML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeException(w, &domain.ClarityError{Status: status, Message: message})
}

func writeException(w http.ResponseWriter, ce *domain.ClarityError) {
	writeXML(w, ce.Status, clarity.EncodeException(ce))
}

// clarityErrorHandler passes an upstream exception through unchanged.
func clarityErrorHandler(w http.ResponseWriter, err error) bool {
	var ce *domain.ClarityError
	if !errors.As(err, &ce) {
		return false
	}
	writeException(w, ce)
	return true
}

// noRecordingHandler names the missing recording in the response.
func noRecordingHandler(w http.ResponseWriter, err error) bool {
	var nr *domain.NoRecordingError
	if !errors.As(err, &nr) {
		return false
	}
	writeError(w, http.StatusNotFound, nr.Error())
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
