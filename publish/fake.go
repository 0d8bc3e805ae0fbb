package publish

import (
	"time"

	"github.com/andy-wilson/thermostat_dashboard/dashboard"
)

// FakePublisher records published reports for test assertions.
type FakePublisher struct {
	// Reports contains every report that was published.
	Reports []dashboard.HealthReport

	// Payloads contains the JSON bodies that were published.
	Payloads [][]byte

	// PublishError, if set, is returned by PublishHealth.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Now stamps payloads; time.Now when nil.
	Now func() time.Time
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishHealth records the report.
func (f *FakePublisher) PublishHealth(report dashboard.HealthReport) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	payload, err := FormatPayload(report, now())
	if err != nil {
		return err
	}
	f.Reports = append(f.Reports, report)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}
