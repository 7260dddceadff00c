package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartgrant/session-server-go/internal/repository"
)

// StatusRefreshJob periodically rewrites the cached status column of sessions
// whose expiry has passed. Reads always evaluate usability live; the stored
// status only exists so list filters match what a caller would compute.
type StatusRefreshJob struct {
	sessionRepo repository.SessionRepository
	interval    time.Duration
	done        chan struct{}
}

func NewStatusRefreshJob(sessionRepo repository.SessionRepository, interval time.Duration) *StatusRefreshJob {
	return &StatusRefreshJob{
		sessionRepo: sessionRepo,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *StatusRefreshJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("status refresh job started")
}

func (j *StatusRefreshJob) Stop() {
	close(j.done)
	log.Info().Msg("status refresh job stopped")
}

func (j *StatusRefreshJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.refresh()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.refresh()
		}
	}
}

func (j *StatusRefreshJob) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.sessionRepo.RefreshExpiredStatuses(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to refresh expired session statuses")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("marked sessions expired")
	}
}
