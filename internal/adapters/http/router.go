package httpadapter

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
	"github.com/frontrangetitle/titleworks/internal/core/usecase"
	"github.com/frontrangetitle/titleworks/internal/observability/metrics"
)

const maxBatchUploadBytes = 20 << 20

// RouterConfig carries API-surface policy: the process-wide rate
// budget and the backpressure gate.
type RouterConfig struct {
	Service        string
	RateLimitRPS   int
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
}

type Router struct {
	submit        *usecase.SubmitUseCase
	batches       *usecase.BatchUseCase
	documents     ports.DocumentRepository
	jurisdictions ports.JurisdictionRepository
	metrics       *metrics.HTTPServerMetrics
	logger        *slog.Logger
	cfg           RouterConfig
}

func NewRouter(
	submit *usecase.SubmitUseCase,
	batches *usecase.BatchUseCase,
	documents ports.DocumentRepository,
	jurisdictions ports.JurisdictionRepository,
	m *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	cfg RouterConfig,
) *Router {
	if cfg.Service == "" {
		cfg.Service = "api"
	}
	if cfg.QueueWait <= 0 {
		cfg.QueueWait = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		submit:        submit,
		batches:       batches,
		documents:     documents,
		jurisdictions: jurisdictions,
		metrics:       m,
		logger:        logger,
		cfg:           cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/searches", rt.searches)
	mux.HandleFunc("/v1/searches/", rt.searchByID)
	mux.HandleFunc("/v1/batches", rt.batchUpload)
	mux.HandleFunc("/v1/batches/", rt.batchByID)
	mux.HandleFunc("/v1/jurisdictions", rt.listJurisdictions)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.QueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitSearchRequest struct {
	StreetAddress   string `json:"street_address"`
	City            string `json:"city"`
	County          string `json:"county"`
	State           string `json:"state"`
	ZipCode         string `json:"zip_code"`
	ParcelNumber    string `json:"parcel_number"`
	RequestedBy     string `json:"requested_by"`
	SearchType      string `json:"search_type"`
	SearchYears     int    `json:"search_years"`
	Priority        string `json:"priority"`
	PreferredSource string `json:"preferred_source"`
}

func (rt *Router) searches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req submitSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	search, err := rt.submit.Submit(r.Context(), usecase.SubmitRequest{
		StreetAddress:   req.StreetAddress,
		City:            req.City,
		County:          req.County,
		State:           req.State,
		ZipCode:         req.ZipCode,
		ParcelNumber:    req.ParcelNumber,
		RequestedBy:     req.RequestedBy,
		SearchType:      domain.SearchType(req.SearchType),
		SearchYears:     req.SearchYears,
		Priority:        domain.SearchPriority(req.Priority),
		PreferredSource: domain.SourcePreference(req.PreferredSource),
	})
	if err != nil {
		// An unsupported county still leaves a failed search record;
		// return it so the caller can see the outcome.
		if search != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), search)
			return
		}
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSearchSubmit(rt.cfg.Service, string(search.Priority))
	}
	writeJSON(w, http.StatusAccepted, search)
}

func (rt *Router) searchByID(w http.ResponseWriter, r *http.Request) {
	id, action := splitResourcePath(r.URL.Path, "/v1/searches/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "search id is required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		search, err := rt.submit.Get(r.Context(), id)
		if err != nil {
			writeError(w, mapErrorToHTTPStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, search)

	case action == "cancel" && r.Method == http.MethodPost:
		if err := rt.submit.Cancel(r.Context(), id); err != nil {
			writeError(w, mapErrorToHTTPStatus(err), err.Error())
			return
		}
		if rt.metrics != nil {
			rt.metrics.RecordSearchCancel(rt.cfg.Service)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})

	case action == "documents" && r.Method == http.MethodGet:
		docs, err := rt.documents.ListBySearch(r.Context(), id)
		if err != nil {
			writeError(w, mapErrorToHTTPStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) batchUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBatchUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	batch, err := rt.batches.Upload(r.Context(), fileHeader.Filename, data, r.FormValue("uploaded_by"))
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordBatchUpload(rt.cfg.Service, batch.TotalRecords)
	}
	writeJSON(w, http.StatusAccepted, batch)
}

func (rt *Router) batchByID(w http.ResponseWriter, r *http.Request) {
	id, action := splitResourcePath(r.URL.Path, "/v1/batches/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "batch id is required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		batch, err := rt.batches.Get(r.Context(), id)
		if err != nil {
			writeError(w, mapErrorToHTTPStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, batch)

	case action == "cancel" && r.Method == http.MethodPost:
		if err := rt.batches.Cancel(r.Context(), id); err != nil {
			writeError(w, mapErrorToHTTPStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) listJurisdictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	configs, err := rt.jurisdictions.ListEnabled(r.Context(), domain.JurisdictionRecorder)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jurisdictions": configs, "count": len(configs)})
}

// splitResourcePath breaks "/v1/searches/<id>[/<action>]" into its id
// and trailing action.
func splitResourcePath(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return "", ""
	}
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id = parts[0]
	if len(parts) > 1 {
		action = parts[1]
	}
	return id, action
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
