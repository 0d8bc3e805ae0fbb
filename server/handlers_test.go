package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/assistant"
	"github.com/andy-wilson/thermostat_dashboard/dashboard"
	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/reading"
	"github.com/andy-wilson/thermostat_dashboard/storage"
)

var testStart = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// fakeModel answers every prompt with a fixed text.
type fakeModel struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeModel) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func (f *fakeModel) Healthy(context.Context) bool { return f.err == nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testReadings returns n hourly readings, alternating heating and cooling.
func testReadings(n int) []reading.Reading {
	rs := make([]reading.Reading, n)
	for i := range rs {
		mode := reading.ModeHeating
		if i%2 == 1 {
			mode = reading.ModeCooling
		}
		rs[i] = reading.Reading{
			Timestamp:   testStart.Add(time.Duration(i) * time.Hour),
			CurrentTemp: 68 + float64(i%5),
			TargetTemp:  70,
			OutsideTemp: 50,
			Humidity:    45,
			EnergyUsage: 0.4 + 0.1*float64(i%4),
			Mode:        mode,
			Occupancy:   i%3 != 0,
		}
	}
	return rs
}

// createTestServer creates a server over a JSON store holding rs
func createTestServer(t *testing.T, rs []reading.Reading, model *fakeModel) *Server {
	t.Helper()
	tmpDir := t.TempDir()

	config := DefaultConfig()
	config.DataFile = filepath.Join(tmpDir, "store", "db.json")
	config.LogFile = ""
	config.RateLimit = 1000
	config.RateBurst = 1000

	store := storage.NewJSONStorage(config.DataFile, quietLogger())
	if err := store.Initialize(); err != nil {
		t.Fatalf("Failed to initialize storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if len(rs) > 0 {
		if err := store.SaveReadings(context.Background(), rs); err != nil {
			t.Fatalf("Failed to save readings: %v", err)
		}
	}

	if model == nil {
		model = &fakeModel{answer: "<p>All good.</p>"}
	}
	dash := dashboard.NewService(store, metrics.DefaultRate, time.UTC, quietLogger())
	ai := assistant.NewService(dash, model, quietLogger())
	return NewServer(config, dash, ai, store, NewMetrics(), quietLogger())
}

// testResponse is the decoded response envelope.
type testResponse struct {
	Success  bool                   `json:"success"`
	Data     json.RawMessage        `json:"data"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata"`
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp testResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response for %s %s: %v", method, target, err)
		}
	}
	return w, resp
}

// TestHandleHealthCheck tests the liveness endpoint
func TestHandleHealthCheck(t *testing.T) {
	server := createTestServer(t, testReadings(10), nil)

	w, resp := do(t, server.Handler(), "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !resp.Success {
		t.Error("Expected success=true")
	}
	if resp.Message != "Thermostat Dashboard API is running" {
		t.Errorf("Unexpected message %q", resp.Message)
	}

	var data struct {
		Readings int64 `json:"readings"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if data.Readings != 10 {
		t.Errorf("Expected 10 readings, got %d", data.Readings)
	}
}

// TestHandleIndex tests the API index
func TestHandleIndex(t *testing.T) {
	server := createTestServer(t, nil, nil)

	w, resp := do(t, server.Handler(), "GET", "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(string(resp.Data), "/api/dashboard") {
		t.Errorf("Index should list the dashboard endpoint, got %s", resp.Data)
	}
}

// TestEndpointsSucceed hits every read endpoint with data present
func TestEndpointsSucceed(t *testing.T) {
	server := createTestServer(t, testReadings(72), nil)
	handler := server.Handler()

	tests := []struct {
		path     string
		endpoint string
	}{
		{"/api/dashboard", "dashboard"},
		{"/api/dashboard?timeRange=24h", "dashboard"},
		{"/api/dashboard/summary", "dashboard/summary"},
		{"/api/dashboard/health", "dashboard/health"},
		{"/api/dashboard/filtered?mode=heating&occupancy=true", "dashboard/filtered"},
		{"/api/dashboard/filtered?startDate=2024-03-04&endDate=2024-03-05", "dashboard/filtered"},
		{"/api/dashboard/comparison?period1Start=2024-03-04&period1End=2024-03-05&period2Start=2024-03-05&period2End=2024-03-06", "dashboard/comparison"},
		{"/api/charts", "charts"},
		{"/api/charts/gauge?timeRange=7d", "charts/gauge"},
		{"/api/charts/kpi", "charts/kpi"},
		{"/api/analytics/comparison?period1Start=2024-03-04&period1End=2024-03-05&period2Start=2024-03-05&period2End=2024-03-06", "analytics/comparison"},
		{"/api/analytics/health", "analytics/health"},
		{"/api/analytics/insights?timeRange=24h", "analytics/insights"},
		{"/api/data", "data"},
		{"/api/data?mode=cooling&minEnergy=0.5", "data"},
		{"/api/data/latest", "data/latest"},
		{"/api/data/stats", "data/stats"},
		{"/api/data/recent?hours=6", "data/recent"},
		{"/api/data/range?startDate=2024-03-04T00:00:00Z&endDate=2024-03-04T05:00:00Z", "data/range"},
		{"/api/data/grouped/day", "data/grouped/day"},
		{"/api/data/grouped/hour", "data/grouped/hour"},
		{"/api/data/hourly", "data/hourly"},
		{"/api/ai/health", "ai/health"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, resp := do(t, handler, "GET", tt.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
			}
			if !resp.Success {
				t.Error("Expected success=true")
			}
			if resp.Metadata["endpoint"] != tt.endpoint {
				t.Errorf("Expected endpoint %q, got %v", tt.endpoint, resp.Metadata["endpoint"])
			}
			if resp.Metadata["timestamp"] == nil {
				t.Error("Expected metadata timestamp")
			}
			if len(resp.Data) == 0 || string(resp.Data) == "null" {
				t.Error("Expected data in response")
			}
		})
	}
}

// TestErrorStatusCodes checks the mapping from error kinds to status codes
func TestErrorStatusCodes(t *testing.T) {
	server := createTestServer(t, testReadings(48), nil)
	handler := server.Handler()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"Unknown chart", "GET", "/api/charts/pie", http.StatusNotFound},
		{"Negative hours", "GET", "/api/data/recent?hours=-1", http.StatusBadRequest},
		{"Non-numeric hours", "GET", "/api/data/recent?hours=abc", http.StatusBadRequest},
		{"Hours beyond a century", "GET", "/api/data/recent?hours=10000000", http.StatusBadRequest},
		{"Range missing end", "GET", "/api/data/range?startDate=2024-03-04", http.StatusBadRequest},
		{"Range inverted", "GET", "/api/data/range?startDate=2024-03-05&endDate=2024-03-04", http.StatusBadRequest},
		{"Range malformed", "GET", "/api/data/range?startDate=yesterday&endDate=2024-03-04", http.StatusBadRequest},
		{"Comparison missing params", "GET", "/api/dashboard/comparison?period1Start=2024-03-04", http.StatusBadRequest},
		{"Comparison empty period", "GET", "/api/analytics/comparison?period1Start=2023-01-01&period1End=2023-01-02&period2Start=2024-03-04&period2End=2024-03-05", http.StatusNotFound},
		{"Inverted temperature bounds", "GET", "/api/dashboard/filtered?minTemp=80&maxTemp=60", http.StatusBadRequest},
		{"Non-numeric bound", "GET", "/api/data?minTemp=warm", http.StatusBadRequest},
		{"NaN bound", "GET", "/api/data?maxEnergy=NaN", http.StatusBadRequest},
		{"Filter matches nothing", "GET", "/api/dashboard/filtered?mode=off", http.StatusNotFound},
		{"Unknown route", "GET", "/api/nothing", http.StatusNotFound},
		{"Wrong method", "POST", "/api/dashboard", http.StatusMethodNotAllowed},
		{"Query with GET", "GET", "/api/ai/query", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, handler, tt.method, tt.path, nil)
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if resp.Success {
				t.Error("Expected success=false")
			}
			if resp.Message == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

// TestEmptyStore checks the views over a store without readings
func TestEmptyStore(t *testing.T) {
	server := createTestServer(t, nil, nil)
	handler := server.Handler()

	for _, path := range []string{"/api/dashboard", "/api/dashboard/summary", "/api/dashboard/health", "/api/charts", "/api/data/latest", "/api/data/hourly"} {
		w, _ := do(t, handler, "GET", path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}

	w, resp := do(t, handler, "GET", "/api/data", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for raw data, got %d", w.Code)
	}
	if string(resp.Data) != "[]" {
		t.Errorf("Expected empty list, got %s", resp.Data)
	}
}

// TestRecentReturnsWindow checks that the window is taken from the latest reading
func TestRecentReturnsWindow(t *testing.T) {
	server := createTestServer(t, testReadings(48), nil)

	_, resp := do(t, server.Handler(), "GET", "/api/data/recent?hours=5", nil)

	var rs []reading.Reading
	if err := json.Unmarshal(resp.Data, &rs); err != nil {
		t.Fatalf("Failed to decode readings: %v", err)
	}
	if len(rs) != 5 {
		t.Fatalf("Expected 5 readings, got %d", len(rs))
	}
	if want := testStart.Add(47 * time.Hour); !rs[4].Timestamp.Equal(want) {
		t.Errorf("Expected last reading at %v, got %v", want, rs[4].Timestamp)
	}
	if resp.Metadata["totalRecords"] != float64(5) {
		t.Errorf("Expected totalRecords 5, got %v", resp.Metadata["totalRecords"])
	}
}

// TestHandleChartType checks a single chart is returned
func TestHandleChartType(t *testing.T) {
	server := createTestServer(t, testReadings(24), nil)

	_, resp := do(t, server.Handler(), "GET", "/api/charts/gauge", nil)

	var gauge struct {
		Value float64 `json:"value"`
		Max   float64 `json:"max"`
	}
	if err := json.Unmarshal(resp.Data, &gauge); err != nil {
		t.Fatalf("Failed to decode gauge: %v", err)
	}
	if gauge.Max != 100 {
		t.Errorf("Expected gauge max 100, got %v", gauge.Max)
	}
	if gauge.Value < 0 || gauge.Value > 100 {
		t.Errorf("Gauge value out of range: %v", gauge.Value)
	}
	if resp.Metadata["timeRange"] != "all" {
		t.Errorf("Expected timeRange all, got %v", resp.Metadata["timeRange"])
	}
}

// TestHandleAIQuery tests the question endpoint
func TestHandleAIQuery(t *testing.T) {
	model := &fakeModel{answer: "<p>Energy use is steady.</p>"}
	server := createTestServer(t, testReadings(48), model)
	handler := server.Handler()

	w, resp := do(t, handler, "POST", "/api/ai/query", strings.NewReader(`{"prompt":"How much energy did I use?","timeRange":"24h"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var answer struct {
		Answer    string `json:"answer"`
		TimeRange string `json:"timeRange"`
	}
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		t.Fatalf("Failed to decode answer: %v", err)
	}
	if answer.Answer != model.answer {
		t.Errorf("Expected %q, got %q", model.answer, answer.Answer)
	}
	if answer.TimeRange != "24h" {
		t.Errorf("Expected timeRange 24h, got %q", answer.TimeRange)
	}
	if len(model.prompts) != 1 || !strings.Contains(model.prompts[0], "How much energy did I use?") {
		t.Errorf("Question not forwarded to the model: %v", model.prompts)
	}
}

// TestHandleAIQueryDefaultsTimeRange checks the 7d default
func TestHandleAIQueryDefaultsTimeRange(t *testing.T) {
	server := createTestServer(t, testReadings(48), nil)

	_, resp := do(t, server.Handler(), "POST", "/api/ai/query", strings.NewReader(`{"prompt":"Is it comfortable?"}`))

	var answer struct {
		TimeRange string `json:"timeRange"`
	}
	json.Unmarshal(resp.Data, &answer)
	if answer.TimeRange != assistant.DefaultTimeRange {
		t.Errorf("Expected default time range %q, got %q", assistant.DefaultTimeRange, answer.TimeRange)
	}
}

// TestHandleAIQueryInvalid tests request validation
func TestHandleAIQueryInvalid(t *testing.T) {
	server := createTestServer(t, testReadings(24), nil)
	handler := server.Handler()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"Invalid JSON", `{"prompt":`, "Invalid request body"},
		{"Missing prompt", `{"timeRange":"7d"}`, "Prompt is required and must be a string"},
		{"Prompt not a string", `{"prompt":42}`, "Invalid request body"},
		{"Blank prompt", `{"prompt":"   "}`, "Prompt cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, handler, "POST", "/api/ai/query", strings.NewReader(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}
			if resp.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, resp.Message)
			}
		})
	}
}

// TestHandleAIQueryUpstreamFailure maps model failures to 502
func TestHandleAIQueryUpstreamFailure(t *testing.T) {
	model := &fakeModel{err: errors.Wrap(assistant.ErrUpstream, "status 503")}
	server := createTestServer(t, testReadings(24), model)

	w, _ := do(t, server.Handler(), "POST", "/api/ai/query", strings.NewReader(`{"prompt":"Hello?"}`))
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}

	_, resp := do(t, server.Handler(), "GET", "/api/ai/health", nil)
	if !strings.Contains(string(resp.Data), `"unhealthy"`) {
		t.Errorf("Expected unhealthy model, got %s", resp.Data)
	}
}

// TestHandleAIHealth reports the configured model name and whether it answered
func TestHandleAIHealth(t *testing.T) {
	server := createTestServer(t, testReadings(24), &fakeModel{answer: "ok"})

	w, resp := do(t, server.Handler(), "GET", "/api/ai/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var health struct {
		Status    string `json:"status"`
		Model     string `json:"model"`
		Reachable bool   `json:"reachable"`
	}
	if err := json.Unmarshal(resp.Data, &health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "healthy" || !health.Reachable {
		t.Errorf("Expected a healthy, reachable model, got %+v", health)
	}
	if health.Model != DefaultConfig().LLMModel {
		t.Errorf("Expected model %q, got %q", DefaultConfig().LLMModel, health.Model)
	}
}

// TestHandleAIQueryWithoutData answers without calling the model
func TestHandleAIQueryWithoutData(t *testing.T) {
	model := &fakeModel{answer: "unused"}
	server := createTestServer(t, nil, model)

	w, resp := do(t, server.Handler(), "POST", "/api/ai/query", strings.NewReader(`{"prompt":"Anything?"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var answer struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		t.Fatalf("Failed to decode answer: %v", err)
	}
	if answer.Answer != assistant.NoDataResponse {
		t.Errorf("Expected the no-data answer, got %q", answer.Answer)
	}
	if len(model.prompts) != 0 {
		t.Errorf("Expected no model calls, got %d", len(model.prompts))
	}
}

// TestRequestID checks ids are generated, echoed and reported
func TestRequestID(t *testing.T) {
	server := createTestServer(t, testReadings(5), nil)
	handler := server.Handler()

	w, resp := do(t, handler, "GET", "/api/data/latest", nil)
	id := w.Header().Get(requestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("Expected a UUID request id, got %q", id)
	}
	if resp.Metadata["requestId"] != id {
		t.Errorf("Expected metadata requestId %q, got %v", id, resp.Metadata["requestId"])
	}

	supplied := uuid.NewString()
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(requestIDHeader, supplied)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != supplied {
		t.Errorf("Expected supplied id %q to be reused, got %q", supplied, got)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got == "not-a-uuid" {
		t.Error("Malformed request id should be replaced")
	}
}

// TestSecurityHeadersAllSet verifies all security headers are set
func TestSecurityHeadersAllSet(t *testing.T) {
	server := createTestServer(t, nil, nil)

	handler := server.securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	requiredHeaders := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"X-XSS-Protection",
		"Content-Security-Policy",
		"Referrer-Policy",
		"Permissions-Policy",
	}

	for _, header := range requiredHeaders {
		if w.Header().Get(header) == "" {
			t.Errorf("Missing required security header: %s", header)
		}
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Expected X-Frame-Options DENY")
	}
}

// TestRateLimitMiddleware tests the rate limiting middleware
func TestRateLimitMiddleware(t *testing.T) {
	server := createTestServer(t, nil, nil)
	server.limiter = newIPRateLimiter(10, 20)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := server.rateLimitMiddleware(testHandler)

	// Make multiple requests from same IP
	allowed := 0
	for i := 0; i < 30; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code == http.StatusOK {
			allowed++
		} else if w.Code != http.StatusTooManyRequests {
			t.Errorf("Unexpected status code: %d", w.Code)
		}
	}

	// Should allow the burst and not much more
	if allowed < 15 {
		t.Errorf("Rate limiter too restrictive: only allowed %d/30 requests", allowed)
	}
	if allowed == 30 {
		t.Error("Rate limiter never rejected a request")
	}

	// Different IP should have separate limit
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.2:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Error("Different IP should have separate rate limit")
	}

	t.Logf("Rate limiter allowed %d/30 requests from same IP", allowed)
}

// TestClientIP tests client address extraction
func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		expected   string
	}{
		{"Peer address", "192.0.2.10:4321", "", "192.0.2.10"},
		{"Forwarded chain", "10.0.0.1:1234", "192.0.2.100, 10.0.0.1", "192.0.2.100"},
		{"Address without port", "192.0.2.11", "", "192.0.2.11"},
		{"IPv6 peer", "[2001:db8::1]:443", "", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

// TestRateLimiterCleanup tests idle entries are dropped
func TestRateLimiterCleanup(t *testing.T) {
	l := newIPRateLimiter(10, 20)
	l.allow("192.0.2.1")
	l.allow("192.0.2.2")
	l.visitors["192.0.2.1"].lastSeen = time.Now().Add(-time.Hour)

	if removed := l.cleanup(10 * time.Minute); removed != 1 {
		t.Errorf("Expected 1 entry removed, got %d", removed)
	}
	if _, ok := l.visitors["192.0.2.2"]; !ok {
		t.Error("Active entry should be kept")
	}
}

// TestCompression tests responses are gzipped when accepted
func TestCompression(t *testing.T) {
	server := createTestServer(t, testReadings(48), nil)
	handler := server.Handler()

	t.Run("With gzip support", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/data", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Header().Get("Content-Encoding") != "gzip" {
			t.Fatal("Expected Content-Encoding: gzip header")
		}

		gr, err := gzip.NewReader(w.Body)
		if err != nil {
			t.Fatalf("Failed to create gzip reader: %v", err)
		}
		defer gr.Close()

		var resp testResponse
		if err := json.NewDecoder(gr).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode decompressed body: %v", err)
		}
		if !resp.Success {
			t.Error("Expected success=true")
		}
	})

	t.Run("Without gzip support", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/data", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Header().Get("Content-Encoding") == "gzip" {
			t.Error("Should not set Content-Encoding without Accept-Encoding header")
		}
	})
}

// TestCORS tests the configured origin is allowed
func TestCORS(t *testing.T) {
	server := createTestServer(t, testReadings(5), nil)
	handler := server.Handler()

	req := httptest.NewRequest("GET", "/api/data/latest", nil)
	req.Header.Set("Origin", server.config.CORSOrigin)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != server.config.CORSOrigin {
		t.Errorf("Expected allowed origin %q, got %q", server.config.CORSOrigin, got)
	}

	req = httptest.NewRequest("GET", "/api/data/latest", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Unexpected allowed origin %q", got)
	}
}

// TestMetricsEndpoint tests request metrics are exported
func TestMetricsEndpoint(t *testing.T) {
	server := createTestServer(t, testReadings(24), nil)
	handler := server.Handler()

	do(t, handler, "GET", "/api/dashboard", nil)
	do(t, handler, "GET", "/api/dashboard/health", nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`http_requests_total{route="/api/dashboard",status="200"} 1`,
		"http_request_duration_seconds",
		"thermostat_healthy",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}

// TestRespondJSON tests the JSON writer
func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()

	respondJSON(w, http.StatusCreated, map[string]string{"key": "value"})

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("Expected key=value, got %v", result)
	}
}

// TestStatusFor tests error kind mapping
func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{badRequest("bad"), http.StatusBadRequest},
		{errors.Wrap(dashboard.ErrInvalidRange, "period 1"), http.StatusBadRequest},
		{errors.Wrap(dashboard.ErrNoData, "dashboard"), http.StatusNotFound},
		{dashboard.ErrUnknownChart, http.StatusNotFound},
		{errors.Wrap(assistant.ErrUpstream, "timeout"), http.StatusBadGateway},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.expected {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.expected)
		}
	}
}

// TestInternalErrorsAreNotLeaked tests 500 responses hide details
func TestInternalErrorsAreNotLeaked(t *testing.T) {
	server := createTestServer(t, nil, nil)

	req := httptest.NewRequest("GET", "/x", nil)
	w := httptest.NewRecorder()
	server.fail(w, req, "x", fmt.Errorf("open /secret/path: permission denied"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("/secret/path")) {
		t.Error("Internal error details should not reach the client")
	}
}
