package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evador/app/usecase"
	"evador/internal/domain/entity"
	"evador/internal/infrastructure/store/filesystem"
)

const (
	// DetectionReportHeader carries the self-check report next to a binary body.
	DetectionReportHeader = "X-Detection-Report"
	artifactContentType   = "binary/octet-stream"
	sourceField           = "binary"
	multipartMemory       = 8 << 20
)

// UploadStore persists an uploaded source into a fresh request workspace.
type UploadStore interface {
	Open(ctx context.Context, filename string, src io.Reader) (*filesystem.Workspace, error)
}

type EvadorHandler struct {
	service   usecase.EvadorUsecase
	uploads   UploadStore
	events    *EventHub
	logger    *slog.Logger
	maxUpload int64

	reqDuration *prometheus.HistogramVec
	reqCount    *prometheus.CounterVec
	errCount    *prometheus.CounterVec
}

func NewEvadorHandler(
	service usecase.EvadorUsecase,
	uploads UploadStore,
	events *EventHub,
	maxUpload int64,
	logger *slog.Logger,
) *EvadorHandler {

	reqDuration := register(prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	))

	reqCount := register(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path"},
	))

	errCount := register(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP request errors.",
		},
		[]string{"method", "path", "status"},
	))

	return &EvadorHandler{
		service:     service,
		uploads:     uploads,
		events:      events,
		logger:      logger,
		maxUpload:   maxUpload,
		reqDuration: reqDuration,
		reqCount:    reqCount,
		errCount:    errCount,
	}
}

// register returns the already registered collector when a handler is built twice.
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (h *EvadorHandler) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		method := r.Method

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		duration := time.Since(start).Seconds()
		statusStr := strconv.Itoa(rw.status)

		h.reqCount.WithLabelValues(method, path).Inc()
		h.reqDuration.WithLabelValues(method, path, statusStr).Observe(duration)

		if rw.status >= 400 {
			h.errCount.WithLabelValues(method, path, statusStr).Inc()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *EvadorHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/modules", h.withMetrics(h.handleModules)).Methods(http.MethodGet)
	r.HandleFunc("/check", h.withMetrics(h.withUpload(h.handleCheck))).Methods(http.MethodPost)
	r.HandleFunc("/native", h.withMetrics(h.withUpload(h.generate(h.service.GenerateNative)))).Methods(http.MethodPost)
	r.HandleFunc("/dotnet", h.withMetrics(h.withUpload(h.generate(h.service.GenerateDotNet)))).Methods(http.MethodPost)
	r.HandleFunc("/powershell", h.withMetrics(h.withUpload(h.generate(h.service.GeneratePowerShell)))).Methods(http.MethodPost)
	r.HandleFunc("/history", h.withMetrics(h.handleHistory)).Methods(http.MethodGet)
	r.HandleFunc("/health", h.withMetrics(h.handleHealth)).Methods(http.MethodGet)
	if h.events != nil {
		r.HandleFunc("/events", h.events.ServeWS).Methods(http.MethodGet)
	}

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

// writeError sends the client-safe message of err. Internal details and
// filesystem paths stay in the logs.
func (h *EvadorHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := http.StatusInternalServerError, "Internal server error"

	var (
		pe  entity.PublicError
		mbe *http.MaxBytesError
		ve  *entity.ValidationError
		ge  *entity.GenerationError
		be  *entity.BackendError
		se  *entity.StorageError
	)
	switch {
	case errors.As(err, &mbe):
		code, msg = http.StatusRequestEntityTooLarge, "Uploaded file is too large"
	case errors.As(err, &ve):
		code = http.StatusBadRequest
	case errors.As(err, &ge):
		code = http.StatusInternalServerError
	case errors.As(err, &be):
		code = http.StatusBadGateway
	case errors.As(err, &se):
		code = http.StatusInternalServerError
	}
	if code != http.StatusRequestEntityTooLarge && errors.As(err, &pe) {
		msg = pe.Public()
	}

	h.logger.Warn("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", code,
		"class", entity.ErrorClass(err),
		"err", err,
	)
	writeJSON(w, code, envelope{Status: "error", Message: msg})
}

type uploadHandler func(w http.ResponseWriter, r *http.Request, ws usecase.Workspace, params url.Values)

// withUpload persists the multipart "binary" field into a request workspace
// before calling next. The workspace and any multipart spool files are gone
// when it returns.
func (h *EvadorHandler) withUpload(next uploadHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.maxUpload > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				h.writeError(w, r, err)
				return
			}
			h.writeError(w, r, entity.NewValidationError(sourceField, entity.ErrMissingSource))
			return
		}
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				h.logger.Warn("remove multipart files failed", "err", err)
			}
		}()

		file, header, err := r.FormFile(sourceField)
		if err != nil {
			h.writeError(w, r, entity.NewValidationError(sourceField, entity.ErrMissingSource))
			return
		}
		defer file.Close()

		ws, err := h.uploads.Open(r.Context(), header.Filename, file)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		defer func() {
			if err := ws.Cleanup(); err != nil {
				h.logger.Error("workspace cleanup failed", "err", err)
			}
		}()

		next(w, r, ws, url.Values(r.MultipartForm.Value))
	}
}

type generateFunc func(ctx context.Context, ws usecase.Workspace, params url.Values) (*entity.Artifact, error)

// POST /native, /dotnet, /powershell
func (h *EvadorHandler) generate(run generateFunc) uploadHandler {
	return func(w http.ResponseWriter, r *http.Request, ws usecase.Workspace, params url.Values) {
		artifact, err := run(r.Context(), ws, params)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeArtifact(w, artifact)
	}
}

func (h *EvadorHandler) writeArtifact(w http.ResponseWriter, artifact *entity.Artifact) {
	if artifact.Report != nil {
		report, err := json.Marshal(artifact.Report)
		if err != nil {
			h.logger.Error("marshal detection report", "err", err)
		} else {
			w.Header().Set(DetectionReportHeader, string(report))
		}
	}
	w.Header().Set("Content-Type", artifactContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		h.logger.Warn("write artifact failed", "err", err)
	}
}

// POST /check
func (h *EvadorHandler) handleCheck(w http.ResponseWriter, r *http.Request, ws usecase.Workspace, _ url.Values) {
	report, err := h.service.Check(r.Context(), ws)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, report)
}

// GET /modules
func (h *EvadorHandler) handleModules(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.service.ListModules(r.Context()))
}

// GET /history?limit=N
func (h *EvadorHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, envelope{Status: "error", Message: "Invalid limit param"})
			return
		}
		limit = n
	}

	records, err := h.service.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("list history failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Status: "error", Message: "Unable to list history"})
		return
	}
	writeSuccess(w, records)
}

// GET /health
func (h *EvadorHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ok": true,
		"ts": time.Now().UTC(),
	}
	writeJSON(w, http.StatusOK, status)
}
