package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kirillkom/notarization-api/internal/config"
	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/core/ports"
	"github.com/kirillkom/notarization-api/internal/observability/metrics"
)

// Services are the inbound ports the router dispatches to.
type Services struct {
	Auth         ports.Authorizer
	Notarization ports.NotarizationWorkflow
	Signatures   ports.SignatureApprover
	Sessions     ports.SessionWorkflow

	// Files serves stored blobs under /files/ when the local backend is used.
	Files   http.Handler
	Metrics *metrics.HTTPServerMetrics
}

type workflowRecorder interface {
	RecordTransition(action, status string)
	RecordUpload(target string, sizes ...int64)
	RecordNotificationFailure(endpoint string)
	RecordApproval(subject, party string, complete bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string)     {}
func (nopRecorder) RecordUpload(string, ...int64)       {}
func (nopRecorder) RecordNotificationFailure(string)    {}
func (nopRecorder) RecordApproval(string, string, bool) {}

type Router struct {
	cfg       config.Config
	svc       Services
	validator *requestValidator
	recorder  workflowRecorder
}

func NewRouter(cfg config.Config, svc Services) *Router {
	validator, err := newRequestValidator()
	if err != nil {
		panic(err)
	}
	var recorder workflowRecorder = nopRecorder{}
	if svc.Metrics != nil {
		recorder = svc.Metrics
	}
	return &Router{
		cfg:       cfg,
		svc:       svc,
		validator: validator,
		recorder:  recorder,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.svc.Metrics != nil {
		mux.Handle("GET /metrics", rt.svc.Metrics.Handler())
	}
	if rt.svc.Files != nil {
		mux.Handle("GET /files/", http.StripPrefix("/files", rt.svc.Files))
	}
	rt.registerNotarizationRoutes(mux)
	rt.registerSessionRoutes(mux)

	var handler http.Handler = mux
	handler = rt.validator.middleware(handler)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureTimeout)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.svc.Metrics != nil {
		handler = rt.svc.Metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type identityHandler func(w http.ResponseWriter, r *http.Request, caller domain.Identity)

// authorized resolves the bearer credential and checks perm before next runs.
func (rt *Router) authorized(perm domain.Permission, next identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := rt.svc.Auth.Authorize(r.Context(), r.Header.Get("Authorization"), perm)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, caller)
	}
}

// committed reports whether err is a notification failure after a saved change.
func committed(err error) bool {
	return errors.Is(err, domain.ErrNotification)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}
