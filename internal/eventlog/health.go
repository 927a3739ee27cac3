package eventlog

// Counters are cumulative since process start.
type Counters struct {
	Written       int64 `json:"written"`
	Dropped       int64 `json:"dropped"`
	Oversize      int64 `json:"oversize"`
	Trimmed       int64 `json:"trimmed"`
	Corrupt       int64 `json:"corrupt"`
	StorageErrors int64 `json:"storageErrors"`
}

// Health is a point-in-time view of the service.
type Health struct {
	Status           string   `json:"status"`
	Disabled         bool     `json:"disabled"`
	Stored           int      `json:"stored"`
	Buffered         int      `json:"buffered"`
	BufferCapacity   int      `json:"bufferCapacity"`
	TransactionSize  int      `json:"transactionSize"`
	OldestEventAgeMs int64    `json:"oldestEventAgeMs"`
	LastStorageError string   `json:"lastStorageError,omitempty"`
	Counters         Counters `json:"counters"`
}

// Healthy reports whether the service is open and has not hit storage errors.
func (h Health) Healthy() bool {
	return (h.Status == StatusOpen.String() || h.Disabled) && h.Counters.StorageErrors == 0
}

// Stats returns the cumulative counters.
func (s *Service) Stats() Counters {
	return Counters{
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		Oversize:      s.oversize.Load(),
		Trimmed:       s.trimmed.Load(),
		Corrupt:       s.corrupt.Load(),
		StorageErrors: s.storageErrors.Load(),
	}
}

// Health reports status, sizes and counters.
func (s *Service) Health() Health {
	h := Health{
		Status:          s.Status().String(),
		Disabled:        s.disabled.Load(),
		Stored:          s.queue.Len(),
		Buffered:        len(s.buffer),
		BufferCapacity:  cap(s.buffer),
		TransactionSize: s.batchSize(),
		Counters:        s.Stats(),
	}
	if wt, ok, err := s.queue.OldestWriteTime(); err == nil && ok {
		h.OldestEventAgeMs = s.clock.Since(wt).Milliseconds()
		if h.OldestEventAgeMs < 0 {
			h.OldestEventAgeMs = 0
		}
	}
	if p := s.lastErr.Load(); p != nil {
		h.LastStorageError = *p
	}
	return h
}

