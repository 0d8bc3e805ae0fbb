package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// JSONStorage implements Backend over a single JSON array file. The file is
// re-read on every call, so edits made by other tools show up immediately.
type JSONStorage struct {
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewJSONStorage creates a JSON file storage backend
func NewJSONStorage(path string, logger *slog.Logger) *JSONStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONStorage{path: path, logger: logger}
}

// record mirrors one entry of the file. Pointer fields tell a missing value
// from a zero one.
type record struct {
	Timestamp   *string  `json:"timestamp"`
	CurrentTemp *float64 `json:"currentTemp"`
	TargetTemp  *float64 `json:"targetTemp"`
	Humidity    *float64 `json:"humidity"`
	EnergyUsage *float64 `json:"energyUsage"`
	Mode        *string  `json:"mode"`
	Occupancy   *bool    `json:"occupancy"`
	OutsideTemp *float64 `json:"outsideTemp"`
}

func (rec record) toReading() (reading.Reading, error) {
	if rec.Timestamp == nil || rec.CurrentTemp == nil || rec.TargetTemp == nil ||
		rec.Humidity == nil || rec.EnergyUsage == nil || rec.Mode == nil ||
		rec.Occupancy == nil || rec.OutsideTemp == nil {
		return reading.Reading{}, errors.New("missing field")
	}
	ts, err := reading.ParseTimestamp(*rec.Timestamp)
	if err != nil {
		return reading.Reading{}, err
	}
	r := reading.Reading{
		Timestamp:   ts,
		CurrentTemp: *rec.CurrentTemp,
		TargetTemp:  *rec.TargetTemp,
		Humidity:    *rec.Humidity,
		EnergyUsage: *rec.EnergyUsage,
		Mode:        *rec.Mode,
		Occupancy:   *rec.Occupancy,
		OutsideTemp: *rec.OutsideTemp,
	}
	return r, reading.Validate(r)
}

// Initialize makes sure the directory holding the file exists
func (j *JSONStorage) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}
	return nil
}

func (j *JSONStorage) load() ([]reading.Reading, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.read()
}

// read parses and validates the file. Entries that fail validation are
// dropped and counted in a warning. Callers hold j.mu.
func (j *JSONStorage) read() ([]reading.Reading, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []reading.Reading{}, nil
		}
		return nil, errors.Wrap(err, "failed to read readings file")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "readings file must hold a JSON array")
	}

	readings := make([]reading.Reading, 0, len(raw))
	dropped := 0
	for i, msg := range raw {
		var rec record
		if err := json.Unmarshal(msg, &rec); err != nil {
			dropped++
			j.logger.Debug("dropping malformed reading", "index", i, "error", err)
			continue
		}
		r, err := rec.toReading()
		if err != nil {
			dropped++
			j.logger.Debug("dropping invalid reading", "index", i, "error", err)
			continue
		}
		readings = append(readings, r)
	}
	if dropped > 0 {
		j.logger.Warn("dropped invalid readings", "file", j.path, "dropped", dropped, "kept", len(readings))
	}

	reading.Sort(readings)
	if n := len(readings); n > 0 {
		readings = dedupe(readings)
		if dupes := n - len(readings); dupes > 0 {
			j.logger.Warn("dropped readings with duplicate timestamps", "file", j.path, "dropped", dupes, "kept", len(readings))
		}
	}
	return readings, nil
}

// dedupe keeps the last of each run of readings sharing a timestamp, the same
// rule SaveReadings and the SQLite upsert apply. rs must be sorted stably.
func dedupe(rs []reading.Reading) []reading.Reading {
	out := rs[:0]
	for i, r := range rs {
		if i+1 < len(rs) && rs[i+1].Timestamp.Equal(r.Timestamp) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// All returns every valid reading in the file
func (j *JSONStorage) All(ctx context.Context) ([]reading.Reading, error) {
	return j.load()
}

// Window returns the readings of the last hours hours
func (j *JSONStorage) Window(ctx context.Context, hours int) ([]reading.Reading, error) {
	rs, err := j.load()
	if err != nil {
		return nil, err
	}
	return reading.Window(rs, hours), nil
}

// Range returns the readings between start and end inclusive
func (j *JSONStorage) Range(ctx context.Context, start, end time.Time) ([]reading.Reading, error) {
	rs, err := j.load()
	if err != nil {
		return nil, err
	}
	return reading.Between(rs, reading.Period{Start: start, End: end}), nil
}

// Latest returns the most recent reading
func (j *JSONStorage) Latest(ctx context.Context) (reading.Reading, error) {
	rs, err := j.load()
	if err != nil {
		return reading.Reading{}, err
	}
	if len(rs) == 0 {
		return reading.Reading{}, errors.Wrap(metrics.ErrNoData, "latest reading")
	}
	return rs[len(rs)-1], nil
}

// Count returns the number of valid readings
func (j *JSONStorage) Count(ctx context.Context) (int64, error) {
	rs, err := j.load()
	if err != nil {
		return 0, err
	}
	return int64(len(rs)), nil
}

// HourlyAggregates computes per-hour aggregates on the fly
func (j *JSONStorage) HourlyAggregates(ctx context.Context, from, to time.Time) ([]Aggregate, error) {
	rs, err := j.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return aggregate(rs), nil
}

// SaveReadings merges readings into the file, replacing entries with the same
// timestamp, and rewrites it atomically.
func (j *JSONStorage) SaveReadings(ctx context.Context, readings []reading.Reading) error {
	for _, r := range readings {
		if err := reading.Validate(r); err != nil {
			return errors.Wrapf(err, "reading at %s", r.Timestamp.Format(time.RFC3339))
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	existing, err := j.read()
	if err != nil {
		return err
	}

	byTime := make(map[int64]int, len(existing))
	for i, r := range existing {
		byTime[r.Timestamp.UnixMilli()] = i
	}
	for _, r := range readings {
		if i, ok := byTime[r.Timestamp.UnixMilli()]; ok {
			existing[i] = r
			continue
		}
		byTime[r.Timestamp.UnixMilli()] = len(existing)
		existing = append(existing, r)
	}
	reading.Sort(existing)

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal readings")
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".readings-*.json")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write readings")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return errors.Wrap(err, "failed to replace readings file")
	}
	return nil
}

// Close is a no-op for JSON storage
func (j *JSONStorage) Close() error {
	return nil
}
