package assistant

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/dashboard"
)

// DefaultTimeRange is the window used when a question does not name one.
const DefaultTimeRange = "7d"

// Model completes prompts.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Healthy(ctx context.Context) bool
}

// Service answers questions with dashboard context.
type Service struct {
	dash   *dashboard.Service
	model  Model
	logger *slog.Logger
}

// NewService returns a Service that reads from dash and asks model.
func NewService(dash *dashboard.Service, model Model, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dash: dash, model: model, logger: logger}
}

// Snapshot gathers the dashboard, latest reading and health for timeRange.
func (s *Service) Snapshot(ctx context.Context, timeRange string) (Snapshot, error) {
	d, err := s.dash.Dashboard(ctx, timeRange)
	if err != nil {
		return Snapshot{}, err
	}
	latest, err := s.dash.Latest(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	health, err := s.dash.Health(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{TimeRange: timeRange, Latest: latest, Dashboard: d, Health: health}, nil
}

// Ask answers question about the readings in timeRange. With no readings the
// canned no-data answer is returned without calling the model.
func (s *Service) Ask(ctx context.Context, question, timeRange string) (string, error) {
	if timeRange == "" {
		timeRange = DefaultTimeRange
	}
	snap, err := s.Snapshot(ctx, timeRange)
	if errors.Is(err, dashboard.ErrNoData) {
		return NoDataResponse, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "building context")
	}

	s.logger.Info("asking language model", "timeRange", timeRange, "questionLength", len(question))
	return s.model.Complete(ctx, BuildPrompt(question, BuildContext(snap), timeRange))
}

// Healthy reports whether the model endpoint is reachable.
func (s *Service) Healthy(ctx context.Context) bool {
	return s.model.Healthy(ctx)
}
