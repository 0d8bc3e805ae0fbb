package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/assistant"
	"github.com/andy-wilson/thermostat_dashboard/dashboard"
	"github.com/andy-wilson/thermostat_dashboard/reading"
	"github.com/andy-wilson/thermostat_dashboard/storage"
)

// version is reported by the API index.
const version = "1.0.0"

// badRequest is a request the handlers could not parse. Its text is sent to
// the client as is.
type badRequest string

func (e badRequest) Error() string { return string(e) }

// Server represents the dashboard HTTP API
type Server struct {
	config  Config
	dash    *dashboard.Service
	ai      *assistant.Service
	store   storage.Backend
	metrics *Metrics
	limiter *ipRateLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewServer creates a new dashboard server instance
func NewServer(config Config, dash *dashboard.Service, ai *assistant.Service, store storage.Backend, metrics *Metrics, logger *slog.Logger) *Server {
	return &Server{
		config:  config,
		dash:    dash,
		ai:      ai,
		store:   store,
		metrics: metrics,
		limiter: newIPRateLimiter(config.RateLimit, config.RateBurst),
		logger:  logger,
		now:     time.Now,
	}
}

// Router registers every endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metrics.Middleware)

	r.HandleFunc("/health", s.handleHealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/health", s.handleHealth("dashboard/health")).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/filtered", s.handleFiltered).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/comparison", s.handleComparison("dashboard/comparison")).Methods(http.MethodGet)

	api.HandleFunc("/charts", s.handleCharts).Methods(http.MethodGet)
	api.HandleFunc("/charts/{type}", s.handleChart).Methods(http.MethodGet)

	api.HandleFunc("/analytics/comparison", s.handleComparison("analytics/comparison")).Methods(http.MethodGet)
	api.HandleFunc("/analytics/health", s.handleHealth("analytics/health")).Methods(http.MethodGet)
	api.HandleFunc("/analytics/insights", s.handleInsights).Methods(http.MethodGet)

	api.HandleFunc("/data", s.handleData).Methods(http.MethodGet)
	api.HandleFunc("/data/latest", s.handleLatest).Methods(http.MethodGet)
	api.HandleFunc("/data/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/data/recent", s.handleRecent).Methods(http.MethodGet)
	api.HandleFunc("/data/range", s.handleRange).Methods(http.MethodGet)
	api.HandleFunc("/data/grouped/day", s.handleGroupedByDay).Methods(http.MethodGet)
	api.HandleFunc("/data/grouped/hour", s.handleGroupedByHour).Methods(http.MethodGet)
	api.HandleFunc("/data/hourly", s.handleHourly).Methods(http.MethodGet)

	api.HandleFunc("/ai/query", s.handleAIQuery).Methods(http.MethodPost)
	api.HandleFunc("/ai/health", s.handleAIHealth).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.respondError(w, req, http.StatusNotFound, "Route "+req.URL.Path+" not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.respondError(w, req, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// envelope is the body of every API response.
type envelope struct {
	Success  bool                   `json:"success"`
	Data     interface{}            `json:"data,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

// respondJSON writes v as JSON with the given status
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func (s *Server) metadata(r *http.Request, endpoint string, extra map[string]interface{}) map[string]interface{} {
	meta := map[string]interface{}{
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
		"requestId": requestIDFrom(r.Context()),
	}
	if endpoint != "" {
		meta["endpoint"] = endpoint
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

func (s *Server) respondOK(w http.ResponseWriter, r *http.Request, endpoint string, data interface{}, extra map[string]interface{}) {
	respondJSON(w, http.StatusOK, envelope{
		Success:  true,
		Data:     data,
		Metadata: s.metadata(r, endpoint, extra),
	})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, envelope{
		Success:  false,
		Message:  message,
		Metadata: s.metadata(r, "", nil),
	})
}

// statusFor maps error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.As(err, new(badRequest)), errors.Is(err, dashboard.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNoData), errors.Is(err, dashboard.ErrUnknownChart):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail logs err and answers with the matching status. Internal failures get
// a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "endpoint", endpoint, "error", err, "request_id", requestIDFrom(r.Context()))
		if status == http.StatusInternalServerError {
			message = "Internal server error"
		}
	} else {
		s.logger.Debug("request rejected", "endpoint", endpoint, "status", status, "error", err)
	}
	s.respondError(w, r, status, message)
}

// handleHealthCheck handles health check requests
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.fail(w, r, "health", err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Thermostat Dashboard API is running",
		Data: map[string]interface{}{
			"storage":  s.config.Storage,
			"readings": count,
		},
		Metadata: s.metadata(r, "health", nil),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Thermostat Dashboard API",
		Data: map[string]interface{}{
			"version": version,
			"endpoints": map[string]string{
				"dashboard": "/api/dashboard",
				"charts":    "/api/charts",
				"data":      "/api/data",
				"analytics": "/api/analytics",
				"ai":        "/api/ai",
				"health":    "/health",
				"metrics":   "/metrics",
			},
		},
		Metadata: s.metadata(r, "", nil),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	timeRange := r.URL.Query().Get("timeRange")
	d, err := s.dash.Dashboard(r.Context(), timeRange)
	if err != nil {
		s.fail(w, r, "dashboard", err)
		return
	}
	s.respondOK(w, r, "dashboard", d, map[string]interface{}{"timeRange": d.Metadata.TimeRange})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dash.Summary(r.Context())
	if err != nil {
		s.fail(w, r, "dashboard/summary", err)
		return
	}
	s.respondOK(w, r, "dashboard/summary", summary, nil)
}

func (s *Server) handleHealth(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.dash.Health(r.Context())
		if err != nil {
			s.fail(w, r, endpoint, err)
			return
		}
		s.metrics.ObserveHealth(report)
		s.respondOK(w, r, endpoint, report, nil)
	}
}

func (s *Server) handleFiltered(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r, true)
	if err != nil {
		s.fail(w, r, "dashboard/filtered", err)
		return
	}
	d, err := s.dash.Filtered(r.Context(), f)
	if err != nil {
		s.fail(w, r, "dashboard/filtered", err)
		return
	}
	s.respondOK(w, r, "dashboard/filtered", d, map[string]interface{}{"appliedFilters": f})
}

func (s *Server) handleComparison(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		p1Start, p1End := q.Get("period1Start"), q.Get("period1End")
		p2Start, p2End := q.Get("period2Start"), q.Get("period2End")
		if p1Start == "" || p1End == "" || p2Start == "" || p2End == "" {
			s.fail(w, r, endpoint, badRequest("Missing required parameters: period1Start, period1End, period2Start, period2End"))
			return
		}
		p1, err := dashboard.ParsePeriod(p1Start, p1End)
		if err != nil {
			s.fail(w, r, endpoint, errors.Wrap(err, "period 1"))
			return
		}
		p2, err := dashboard.ParsePeriod(p2Start, p2End)
		if err != nil {
			s.fail(w, r, endpoint, errors.Wrap(err, "period 2"))
			return
		}
		c, err := s.dash.Comparison(r.Context(), p1, p2)
		if err != nil {
			s.fail(w, r, endpoint, err)
			return
		}
		s.respondOK(w, r, endpoint, c, map[string]interface{}{
			"periods": map[string]dashboard.Period{"period1": p1, "period2": p2},
		})
	}
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	timeRange := r.URL.Query().Get("timeRange")
	all, err := s.dash.Charts(r.Context(), timeRange)
	if err != nil {
		s.fail(w, r, "charts", err)
		return
	}
	s.respondOK(w, r, "charts", all, map[string]interface{}{"timeRange": timeRangeLabel(timeRange)})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	chartType := mux.Vars(r)["type"]
	timeRange := r.URL.Query().Get("timeRange")
	endpoint := "charts/" + chartType
	chart, err := s.dash.Chart(r.Context(), chartType, timeRange)
	if err != nil {
		s.fail(w, r, endpoint, err)
		return
	}
	s.respondOK(w, r, endpoint, chart, map[string]interface{}{"timeRange": timeRangeLabel(timeRange)})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	timeRange := r.URL.Query().Get("timeRange")
	insights, err := s.dash.Insights(r.Context(), timeRange)
	if err != nil {
		s.fail(w, r, "analytics/insights", err)
		return
	}
	s.respondOK(w, r, "analytics/insights", insights, nil)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r, false)
	if err != nil {
		s.fail(w, r, "data", err)
		return
	}
	rs, err := s.dash.Readings(r.Context(), f)
	if err != nil {
		s.fail(w, r, "data", err)
		return
	}
	s.respondOK(w, r, "data", rs, map[string]interface{}{
		"totalRecords": len(rs),
		"filters":      f,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.dash.Latest(r.Context())
	if err != nil {
		s.fail(w, r, "data/latest", err)
		return
	}
	s.respondOK(w, r, "data/latest", latest, nil)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dash.Stats(r.Context())
	if err != nil {
		s.fail(w, r, "data/stats", err)
		return
	}
	s.respondOK(w, r, "data/stats", stats, nil)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, r, "data/recent", badRequest("Invalid hours parameter. Must be a positive number."))
			return
		}
		if n > reading.MaxWindowHours {
			s.fail(w, r, "data/recent", badRequest(fmt.Sprintf("Invalid hours parameter. Must be at most %d.", reading.MaxWindowHours)))
			return
		}
		hours = n
	}
	rs, err := s.dash.Recent(r.Context(), hours)
	if err != nil {
		s.fail(w, r, "data/recent", err)
		return
	}
	s.respondOK(w, r, "data/recent", rs, map[string]interface{}{
		"hours":        hours,
		"totalRecords": len(rs),
	})
}

// queryPeriod parses the startDate/endDate pair. Both are required.
func queryPeriod(r *http.Request) (dashboard.Period, error) {
	start, end := r.URL.Query().Get("startDate"), r.URL.Query().Get("endDate")
	if start == "" || end == "" {
		return dashboard.Period{}, badRequest("Missing required parameters: startDate and endDate")
	}
	return dashboard.ParsePeriod(start, end)
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	p, err := queryPeriod(r)
	if err != nil {
		s.fail(w, r, "data/range", err)
		return
	}
	rs, err := s.dash.Range(r.Context(), p)
	if err != nil {
		s.fail(w, r, "data/range", err)
		return
	}
	s.respondOK(w, r, "data/range", rs, map[string]interface{}{
		"dateRange":    p,
		"totalRecords": len(rs),
	})
}

func (s *Server) handleGroupedByDay(w http.ResponseWriter, r *http.Request) {
	groups, err := s.dash.GroupedByDay(r.Context())
	if err != nil {
		s.fail(w, r, "data/grouped/day", err)
		return
	}
	s.respondOK(w, r, "data/grouped/day", groups, map[string]interface{}{"totalGroups": len(groups)})
}

func (s *Server) handleGroupedByHour(w http.ResponseWriter, r *http.Request) {
	groups, err := s.dash.GroupedByHour(r.Context())
	if err != nil {
		s.fail(w, r, "data/grouped/hour", err)
		return
	}
	s.respondOK(w, r, "data/grouped/hour", groups, map[string]interface{}{"totalGroups": len(groups)})
}

// handleHourly serves per-hour aggregates computed by the store. Without a
// date range it covers the 24 hours up to the latest reading.
func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	var p dashboard.Period
	if r.URL.Query().Get("startDate") == "" && r.URL.Query().Get("endDate") == "" {
		latest, err := s.store.Latest(r.Context())
		if err != nil {
			s.fail(w, r, "data/hourly", err)
			return
		}
		p = dashboard.Period{Start: latest.Timestamp.Add(-24 * time.Hour), End: latest.Timestamp}
	} else {
		var err error
		if p, err = queryPeriod(r); err != nil {
			s.fail(w, r, "data/hourly", err)
			return
		}
	}
	aggs, err := s.store.HourlyAggregates(r.Context(), p.Start, p.End)
	if err != nil {
		s.fail(w, r, "data/hourly", err)
		return
	}
	s.respondOK(w, r, "data/hourly", aggs, map[string]interface{}{
		"dateRange":   p,
		"totalGroups": len(aggs),
	})
}

// aiQuery is the body of POST /api/ai/query.
type aiQuery struct {
	Prompt    *string `json:"prompt"`
	TimeRange string  `json:"timeRange"`
}

// aiAnswer is returned by POST /api/ai/query.
type aiAnswer struct {
	Answer    string    `json:"answer"`
	TimeRange string    `json:"timeRange"`
	Timestamp time.Time `json:"timestamp"`
}

// maxQueryBody bounds the question payload.
const maxQueryBody = 64 << 10

func (s *Server) handleAIQuery(w http.ResponseWriter, r *http.Request) {
	var q aiQuery
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&q); err != nil {
		s.fail(w, r, "ai/query", badRequest("Invalid request body"))
		return
	}
	if q.Prompt == nil {
		s.fail(w, r, "ai/query", badRequest("Prompt is required and must be a string"))
		return
	}
	prompt := strings.TrimSpace(*q.Prompt)
	if prompt == "" {
		s.fail(w, r, "ai/query", badRequest("Prompt cannot be empty"))
		return
	}
	if q.TimeRange == "" {
		q.TimeRange = assistant.DefaultTimeRange
	}

	answer, err := s.ai.Ask(r.Context(), prompt, q.TimeRange)
	if err != nil {
		s.fail(w, r, "ai/query", err)
		return
	}
	s.respondOK(w, r, "ai/query", aiAnswer{
		Answer:    answer,
		TimeRange: q.TimeRange,
		Timestamp: s.now().UTC(),
	}, nil)
}

func (s *Server) handleAIHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.ai.Healthy(r.Context())
	status := "unhealthy"
	if healthy {
		status = "healthy"
	}
	s.respondOK(w, r, "ai/health", map[string]interface{}{
		"status":    status,
		"model":     s.config.LLMModel,
		"reachable": healthy,
	}, nil)
}

// timeRangeLabel names the window a time range token selects.
func timeRangeLabel(timeRange string) string {
	if timeRange == "" {
		return "all"
	}
	return timeRange
}

// parseFilters reads filter criteria from the query string. The date range
// is only accepted where the view supports it.
func parseFilters(r *http.Request, withDates bool) (dashboard.Filters, error) {
	q := r.URL.Query()
	var f dashboard.Filters

	f.Mode = q.Get("mode")
	if raw := q.Get("occupancy"); raw != "" {
		occupied := raw == "true"
		f.Occupancy = &occupied
	}

	bounds := []struct {
		name string
		dst  **float64
	}{
		{"minTemp", &f.MinTemp},
		{"maxTemp", &f.MaxTemp},
		{"minEnergy", &f.MinEnergy},
		{"maxEnergy", &f.MaxEnergy},
	}
	for _, b := range bounds {
		raw := q.Get(b.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return f, badRequest(fmt.Sprintf("invalid %s %q", b.name, raw))
		}
		*b.dst = &v
	}

	if withDates {
		start, end := q.Get("startDate"), q.Get("endDate")
		if start != "" && end != "" {
			p, err := reading.ParsePeriod(start, end)
			if err != nil {
				return f, err
			}
			f.DateRange = &p
		}
	}
	return f, nil
}
