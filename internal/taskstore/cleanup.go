package taskstore

import (
	"time"

	"github.com/rs/zerolog"
)

// Prune drops terminal records last written before now-retention and returns
// how many were removed. In-flight records are never touched.
func (s *MemoryStore) Prune(retention time.Duration, now time.Time) int {
	if retention <= 0 {
		return 0
	}
	cutoff := now.Add(-retention)
	cleaned := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.tasks {
		if rec.Status.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			cleaned++
		}
	}
	return cleaned
}

// Sweep calls Prune every interval until stop is closed.
func (s *MemoryStore) Sweep(retention, interval time.Duration, stop <-chan struct{}, logger zerolog.Logger) {
	if retention <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			if cleaned := s.Prune(retention, now); cleaned > 0 {
				logger.Info().Int("cleaned", cleaned).Msg("pruned old task records")
			}
		}
	}
}
