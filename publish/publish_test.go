package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/andy-wilson/thermostat_dashboard/dashboard"
)

type stubSource struct {
	reports []dashboard.HealthReport
	err     error
	calls   int
}

func (s *stubSource) Health(context.Context) (dashboard.HealthReport, error) {
	s.calls++
	if s.err != nil {
		return dashboard.HealthReport{}, s.err
	}
	return s.reports[(s.calls-1)%len(s.reports)], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runTicks drives Loop through n ticks and waits for it to stop.
func runTicks(src HealthSource, pub Publisher, n int) {
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		Loop(ctx, src, pub, tick, quietLogger())
		close(done)
	}()
	for i := 0; i < n; i++ {
		tick <- time.Now()
	}
	cancel()
	<-done
}

func TestFormatPayload(t *testing.T) {
	report := dashboard.HealthReport{
		Overall:         dashboard.OverallHealthy,
		Recommendations: []string{dashboard.RecommendNone},
	}
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("EST", -5*3600))

	payload, err := FormatPayload(report, at)
	if err != nil {
		t.Fatalf("FormatPayload failed: %v", err)
	}

	var decoded struct {
		Timestamp string `json:"timestamp"`
		Health    struct {
			Overall         string   `json:"overall"`
			Recommendations []string `json:"recommendations"`
		} `json:"health"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Timestamp != "2024-01-15T15:30:00Z" {
		t.Errorf("Expected UTC timestamp, got %s", decoded.Timestamp)
	}
	if decoded.Health.Overall != dashboard.OverallHealthy {
		t.Errorf("Expected overall %q, got %q", dashboard.OverallHealthy, decoded.Health.Overall)
	}
	if len(decoded.Health.Recommendations) != 1 {
		t.Errorf("Expected 1 recommendation, got %d", len(decoded.Health.Recommendations))
	}
}

func TestLoopPublishesEveryTick(t *testing.T) {
	src := &stubSource{reports: []dashboard.HealthReport{
		{Overall: dashboard.OverallHealthy},
		{Overall: dashboard.OverallNeedsAttention},
	}}
	pub := NewFakePublisher()

	runTicks(src, pub, 3)

	if len(pub.Reports) != 3 {
		t.Fatalf("Expected 3 published reports, got %d", len(pub.Reports))
	}
	want := []string{dashboard.OverallHealthy, dashboard.OverallNeedsAttention, dashboard.OverallHealthy}
	for i, w := range want {
		if pub.Reports[i].Overall != w {
			t.Errorf("report %d: expected %q, got %q", i, w, pub.Reports[i].Overall)
		}
	}
	if len(pub.Payloads) != 3 {
		t.Errorf("Expected 3 payloads, got %d", len(pub.Payloads))
	}
}

func TestLoopSurvivesSourceErrors(t *testing.T) {
	src := &stubSource{err: dashboard.ErrNoData}
	pub := NewFakePublisher()

	runTicks(src, pub, 2)

	if src.calls != 2 {
		t.Errorf("Expected 2 health computations, got %d", src.calls)
	}
	if len(pub.Reports) != 0 {
		t.Errorf("Expected nothing published, got %d", len(pub.Reports))
	}
}

func TestLoopSurvivesPublishErrors(t *testing.T) {
	src := &stubSource{reports: []dashboard.HealthReport{{Overall: dashboard.OverallHealthy}}}
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")

	runTicks(src, pub, 2)

	if src.calls != 2 {
		t.Errorf("Expected loop to keep ticking after publish errors, got %d calls", src.calls)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		Loop(ctx, &stubSource{}, NewFakePublisher(), make(chan time.Time), quietLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after cancel")
	}
}

func TestFakePublisherClose(t *testing.T) {
	pub := NewFakePublisher()
	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !pub.Closed {
		t.Error("Expected Closed to be true")
	}
}

type stubToken struct {
	done bool
	err  error
}

func (t *stubToken) Wait() bool                     { return t.done }
func (t *stubToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}
func (t *stubToken) Error() error { return t.err }

type stubClient struct {
	paho.Client
	token        *stubToken
	disconnected bool
}

func (c *stubClient) Connect() paho.Token { return c.token }
func (c *stubClient) Disconnect(uint)     { c.disconnected = true }

func TestConnectStopsRetryingOnFailure(t *testing.T) {
	tests := []struct {
		name           string
		token          *stubToken
		wantErr        bool
		wantDisconnect bool
	}{
		{"connected", &stubToken{done: true}, false, false},
		{"timeout", &stubToken{done: false}, true, true},
		{"refused", &stubToken{done: true, err: errors.New("refused")}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{token: tt.token}
			err := connect(client, time.Millisecond)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if client.disconnected != tt.wantDisconnect {
				t.Errorf("Expected disconnected=%v, got %v", tt.wantDisconnect, client.disconnected)
			}
		})
	}
}
