package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/application/service"
	"github.com/TemirB/shop-orders/internal/domain"
	"github.com/TemirB/shop-orders/internal/observability"
	"github.com/TemirB/shop-orders/internal/upstream/shopify"
	"github.com/TemirB/shop-orders/internal/window"
)

//go:generate mockgen -source=httpapi.go -destination=httpapi_mock_test.go -package=httpapi

const serviceName = "shop-orders"

var ErrInvalidHours = errors.New("invalid startHour/endHour")

type OrderService interface {
	RetrieveWithStats(ctx context.Context, req service.Request) (domain.Aggregate, service.LookupStats, error)
	DayDetail(ctx context.Context, date string, force bool) (domain.Aggregate, error)
	Deliveries(ctx context.Context, date string, force bool) (domain.DeliveryResult, error)
	CacheInfo(ctx context.Context) (domain.CacheMetadata, error)
	ClearCache(ctx context.Context) error
}

type StatsSource interface {
	Snapshot() observability.Stats
}

type Server struct {
	service OrderService
	stats   StatsSource
	router  chi.Router
	logger  *zap.Logger
	metrics observability.Metrics
}

func New(svc OrderService, stats StatsSource, logger *zap.Logger, metrics observability.Metrics) *Server {
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	s := &Server{
		service: svc,
		stats:   stats,
		logger:  logger,
		metrics: metrics,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(ServerTimingApp(s.metrics))
	r.Use(RequestLogger(s.logger))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/orders", s.getOrders)
		r.Get("/orders/date/{date}", s.getDayDetail)
		r.Get("/orders/delivery-date/{date}", s.getDeliveries)
		r.Get("/cache/info", s.cacheInfo)
		r.Post("/cache/clear", s.clearCache)
		r.Get("/stats", s.getStats)
	})
	s.router = r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	selector := q.Get("timeChunk")
	if selector == "" {
		selector = q.Get("window")
	}
	if selector == "" || selector == window.Full {
		custom, err := hourRange(q)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if custom != "" {
			selector = custom
		}
	}
	req := service.Request{
		Date:   q.Get("date"),
		Window: selector,
		Force:  refresh(r),
	}

	agg, st, err := s.service.RetrieveWithStats(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	new(observability.Timing).
		Add("cache", st.CacheMs, "").
		Add("upstream", st.UpstreamMs, "").
		Add("source", 0, string(st.Source)).
		Write(w)
	w.Header().Set("X-Source", string(st.Source))
	if st.Calls > 0 {
		w.Header().Set("X-Upstream-Calls", strconv.Itoa(st.Calls))
	}
	observability.SetMillis(w, "X-Cache-Time", st.CacheMs)
	observability.SetMillis(w, "X-Upstream-Time", st.UpstreamMs)

	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) getDayDetail(w http.ResponseWriter, r *http.Request) {
	agg, err := s.service.DayDetail(r.Context(), chi.URLParam(r, "date"), refresh(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) getDeliveries(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Deliveries(r.Context(), chi.URLParam(r, "date"), refresh(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) cacheInfo(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.CacheInfo(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type clearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearCache(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, clearResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Success: true, Message: "Cache cleared successfully"})
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, observability.Stats{})
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if ue, ok := shopify.AsUpstream(err); ok {
		if ue.BreakerOpen() {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:   "Shopify API unavailable: circuit breaker open",
				Details: "request was not sent upstream",
			})
			return
		}
		writeJSON(w, ue.Status(), errorResponse{
			Error:   fmt.Sprintf("Shopify API Error: %d", ue.Status()),
			Details: ue.Body,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrMissingDate):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Date parameter is required"})
	case errors.Is(err, domain.ErrInvalidDate), errors.Is(err, window.ErrUnknownSelector), errors.Is(err, ErrInvalidHours):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error", Details: err.Error()})
	}
}

// hourRange maps startHour/endHour onto a custom "HH:00-HH:59" window. It
// returns "" when neither is set or they span the whole day.
func hourRange(q url.Values) (string, error) {
	rawStart, rawEnd := q.Get("startHour"), q.Get("endHour")
	if rawStart == "" && rawEnd == "" {
		return "", nil
	}
	start, err := parseHour(rawStart, 0)
	if err != nil {
		return "", err
	}
	end, err := parseHour(rawEnd, 23)
	if err != nil {
		return "", err
	}
	if start > end {
		return "", fmt.Errorf("%w: %02d > %02d", ErrInvalidHours, start, end)
	}
	if start == 0 && end == 23 {
		return "", nil
	}
	return fmt.Sprintf("%02d:00-%02d:59", start, end), nil
}

func parseHour(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	h, err := strconv.Atoi(raw)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHours, raw)
	}
	return h, nil
}

func refresh(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler { return s.router }
