// SPDX-License-Identifier: MIT

package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunRetention prunes rows older than retention every interval until ctx is
// done. A zero retention disables pruning.
func (s *Store) RunRetention(ctx context.Context, retention, interval time.Duration, logger zerolog.Logger) error {
	if retention <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := s.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn().Err(err).Msg("history prune failed")
		case n > 0:
			logger.Info().Int64("rows", n).Dur("retention", retention).Msg("pruned history")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
