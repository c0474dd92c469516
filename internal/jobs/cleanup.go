package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edgeoftrust/watch-relay/internal/repository"
)

// CleanupJob prunes the durable audit trail past its retention window. The
// ephemeral redis records expire on their own TTLs and need no sweeping.
type CleanupJob struct {
	auditRepo repository.DecisionAuditRepository
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
}

func NewCleanupJob(auditRepo repository.DecisionAuditRepository, retention, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		auditRepo: auditRepo,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)
	count, err := j.auditRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup decision audit")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up decision audit rows")
	}
}
