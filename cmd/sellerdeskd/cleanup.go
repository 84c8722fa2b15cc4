// ABOUTME: Background cleanup of old contact messages and idle limiters.
// ABOUTME: Prevents unbounded growth of relay state.

package main

import (
	"context"
	"time"

	"github.com/pocketbase/dbx"
	"go.uber.org/zap"

	"github.com/design2deploy2025/inventory-management-sub000/cmd/sellerdeskd/migrations"
)

// CleanupStats tracks how much was purged.
type CleanupStats struct {
	messages int64
	limiters int
}

// cleanupExpired deletes contact messages created before cutoff and drops
// limiters idle for an hour.
func (s *Server) cleanupExpired(ctx context.Context, cutoff time.Time) CleanupStats {
	var stats CleanupStats

	res, err := s.app.DB().NewQuery(
		"DELETE FROM {{" + migrations.ContactMessages + "}} WHERE [[created]] < {:cutoff}",
	).WithContext(ctx).Bind(dbx.Params{"cutoff": cutoff.UTC().Format("2006-01-02 15:04:05.000Z")}).Execute()
	if err != nil {
		s.log.Warn("cleanup contact messages", zap.Error(err))
	} else if n, _ := res.RowsAffected(); n > 0 {
		stats.messages = n
	}

	if s.contactLimiters != nil {
		stats.limiters = s.contactLimiters.prune(s.now().Add(-time.Hour))
	}
	return stats
}

// startCleanupRoutine runs cleanup every hour in background.
func (s *Server) startCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := s.cleanupExpired(ctx, s.now().Add(-contactRetention))
				if stats.messages > 0 || stats.limiters > 0 {
					s.log.Info("cleanup", zap.Int64("messages", stats.messages), zap.Int("limiters", stats.limiters))
				}
			}
		}
	}()
}
