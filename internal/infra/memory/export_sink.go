package memory

import (
	"context"
	"sync"
)

// ExportRecord is one keyed record captured by RecordingSink.
type ExportRecord struct {
	Key   string
	Value []byte
}

// RecordingSink keeps exported records in memory (useful for tests/demos and single-node runs without a log).
type RecordingSink struct {
	limit int

	mu      sync.Mutex
	records []ExportRecord
}

// NewRecordingSink keeps at most limit records, dropping the oldest; limit <= 0 keeps everything.
func NewRecordingSink(limit int) *RecordingSink {
	return &RecordingSink{limit: limit}
}

func (s *RecordingSink) Export(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, ExportRecord{Key: key, Value: append([]byte(nil), value...)})
	if s.limit > 0 && len(s.records) > s.limit {
		s.records = s.records[len(s.records)-s.limit:]
	}
	return nil
}

// Records returns a copy of what has been exported so far.
func (s *RecordingSink) Records() []ExportRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ExportRecord(nil), s.records...)
}
