package ledger

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// 以微秒记录, 上限一小时
	minTrackable = 1
	maxTrackable = int64(time.Hour / time.Microsecond)
	sigFigures   = 3
)

// durationStats tracks task durations with an HDR histogram.
type durationStats struct {
	mu     sync.Mutex
	hist   *hdrhistogram.Histogram
	failed int64
}

func newDurationStats() *durationStats {
	return &durationStats{hist: hdrhistogram.New(minTrackable, maxTrackable, sigFigures)}
}

func (s *durationStats) record(d time.Duration, failed bool) {
	us := d.Microseconds()
	if us < minTrackable {
		us = minTrackable
	}
	if us > maxTrackable {
		us = maxTrackable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.hist.RecordValue(us)
	if failed {
		s.failed++
	}
}

func (s *durationStats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hist.Reset()
	s.failed = 0
}

func (s *durationStats) summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.hist.TotalCount()
	if count == 0 {
		return Summary{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Summary{
		Count:  count,
		Failed: s.failed,
		Min:    us(s.hist.Min()),
		P50:    us(s.hist.ValueAtQuantile(50)),
		P90:    us(s.hist.ValueAtQuantile(90)),
		Max:    us(s.hist.Max()),
	}
}
