package batch

// state tracks the adaptive sizing for one Process run. It is reset to the
// configured defaults per session and mutated only by the processor.
type state struct {
	cfg         Config
	currentSize int
	// consecutiveFailures drives sizing only; reported failure totals live
	// in Result.
	consecutiveFailures int
	// grew reports whether the last success transition increased the size.
	grew bool
}

func newState(cfg Config) *state {
	return &state{cfg: cfg, currentSize: cfg.InitialBatchSize}
}

// sliceSize returns the chunk size to use next, clamped so slicing can never
// stall on a zero or negative size.
func (s *state) sliceSize() int {
	if s.currentSize <= 0 {
		s.currentSize = 1
	}
	if s.currentSize > s.cfg.MaxBatchSize {
		s.currentSize = s.cfg.MaxBatchSize
	}
	return s.currentSize
}

// recordSuccess resets the failure streak and grows the batch size by one,
// capped at the maximum.
func (s *state) recordSuccess() {
	s.consecutiveFailures = 0
	s.grew = false
	if s.currentSize < s.cfg.MaxBatchSize {
		s.currentSize++
		s.grew = true
	}
}

// recordFailure increments the failure streak. Once the streak reaches the
// configured maximum the batch size halves (floored at the minimum) and the
// streak's effect on sizing resets. Returns whether the size was halved.
func (s *state) recordFailure() bool {
	s.grew = false
	s.consecutiveFailures++
	if s.consecutiveFailures < s.cfg.MaxConsecutiveFailures {
		return false
	}

	s.consecutiveFailures = 0
	halved := s.currentSize / 2
	if halved < s.cfg.MinBatchSize {
		halved = s.cfg.MinBatchSize
	}
	changed := halved != s.currentSize
	s.currentSize = halved
	return changed
}

// recordPartialRecovery decrements the failure streak (floor 0) when at least
// half of a failed chunk's items succeeded individually.
func (s *state) recordPartialRecovery() {
	if s.consecutiveFailures > 0 {
		s.consecutiveFailures--
	}
}
