package reading

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidRange is returned for malformed timestamps, ranges whose start is
// not before their end, and filters whose minimum exceeds their maximum.
var ErrInvalidRange = errors.New("invalid range")

// Period is a closed time interval.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParsePeriod parses and validates a start/end pair.
func ParsePeriod(start, end string) (Period, error) {
	s, err := ParseTimestamp(start)
	if err != nil {
		return Period{}, err
	}
	e, err := ParseTimestamp(end)
	if err != nil {
		return Period{}, err
	}
	p := Period{Start: s, End: e}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate rejects periods whose start is not strictly before the end.
func (p Period) Validate() error {
	if !p.Start.Before(p.End) {
		return errors.Wrapf(ErrInvalidRange, "start %s is not before end %s",
			p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t lies in the period, both ends inclusive.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Sort orders readings ascending by timestamp, keeping the relative order of
// equal timestamps.
func Sort(rs []Reading) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Timestamp.Before(rs[j].Timestamp)
	})
}

// MaxWindowHours is the widest hour-count window, a century. Larger counts
// would overflow time.Duration.
const MaxWindowHours = 100 * 366 * 24

// Window returns the readings from the last hours hours, measured back from the
// latest reading: timestamp > latest - hours. With hourly sampling this is the
// last hours entries. Counts above MaxWindowHours take every reading. rs must be
// sorted ascending.
func Window(rs []Reading, hours int) []Reading {
	if len(rs) == 0 || hours <= 0 {
		return []Reading{}
	}
	if hours > MaxWindowHours {
		out := make([]Reading, len(rs))
		copy(out, rs)
		return out
	}
	cutoff := rs[len(rs)-1].Timestamp.Add(-time.Duration(hours) * time.Hour)
	idx := sort.Search(len(rs), func(i int) bool {
		return rs[i].Timestamp.After(cutoff)
	})
	out := make([]Reading, len(rs)-idx)
	copy(out, rs[idx:])
	return out
}

// Between returns the readings inside p. rs must be sorted ascending.
func Between(rs []Reading, p Period) []Reading {
	out := make([]Reading, 0)
	for _, r := range rs {
		if p.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	return out
}

// InLocation returns a copy of rs with every timestamp expressed in loc, so that
// weekday and hour groupings are computed in the household's time zone.
func InLocation(rs []Reading, loc *time.Location) []Reading {
	out := make([]Reading, len(rs))
	for i, r := range rs {
		if loc != nil {
			r.Timestamp = r.Timestamp.In(loc)
		}
		out[i] = r
	}
	return out
}
