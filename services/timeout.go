package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/askmira/backend/repository"
)

const (
	voiceSessionSweepInterval = 30 * time.Second
	voiceSessionIdleTimeout   = 5 * time.Minute
)

// VoiceSessionSweeper reclaims voice sessions whose connection died without
// a clean close: anything still active or processing with no activity for
// the idle timeout is flipped back to inactive.
type VoiceSessionSweeper struct {
	repo     *repository.GORMRepository
	interval time.Duration
	maxIdle  time.Duration
}

func NewVoiceSessionSweeper(repo *repository.GORMRepository) *VoiceSessionSweeper {
	return &VoiceSessionSweeper{
		repo:     repo,
		interval: voiceSessionSweepInterval,
		maxIdle:  voiceSessionIdleTimeout,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *VoiceSessionSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Voice session sweeper stopped")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *VoiceSessionSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxIdle)
	if _, err := s.repo.ReclaimStaleVoiceSessions(ctx, cutoff); err != nil {
		slog.Error("Voice session sweep failed", "error", err)
	}
}
