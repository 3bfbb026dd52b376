package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/catalog-search/internal/config"
	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/core/ports"
	"github.com/kirillkom/catalog-search/internal/observability/metrics"
)

const maxRequestBodyBytes = 64 << 10

type Router struct {
	cfg     config.Config
	search  ports.SearchService
	changes ports.RecordChangeNotifier
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	search ports.SearchService,
	changes ports.RecordChangeNotifier,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:     cfg,
		search:  search,
		changes: changes,
		metrics: httpMetrics,
	}
}

// Handler builds the mux behind recover, request id, access log, rate limit
// and backpressure middleware, outermost first.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.searchRecords)
	if rt.changes != nil && rt.cfg.APIAdminToken != "" {
		mux.HandleFunc("POST /v1/records/{id}/changed", rt.recordChanged)
	}
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return recoverMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) searchRecords(w http.ResponseWriter, r *http.Request) {
	var (
		req domain.SearchRequest
		err error
	)
	switch r.Method {
	case http.MethodGet:
		req, err = searchRequestFromQuery(r)
	case http.MethodPost:
		req, err = searchRequestFromBody(r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	page, err := rt.search.Search(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if page.Results == nil {
		page.Results = []domain.EnrichedRecord{}
	}
	writeJSON(w, http.StatusOK, page)
}

func searchRequestFromQuery(r *http.Request) (domain.SearchRequest, error) {
	values := r.URL.Query()
	req := domain.SearchRequest{Query: values.Get("q")}
	if req.Query == "" {
		req.Query = values.Get("query")
	}
	var err error
	if req.Offset, err = intParam(values.Get("offset")); err != nil {
		return req, errors.New("offset must be an integer")
	}
	if req.Limit, err = intParam(values.Get("limit")); err != nil {
		return req, errors.New("limit must be an integer")
	}
	return req, nil
}

func searchRequestFromBody(r *http.Request) (domain.SearchRequest, error) {
	var req domain.SearchRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		return req, errors.New("invalid json")
	}
	return req, nil
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": publicErrorMessage(status, err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("write_json_response_failed", "error", err)
	}
}
