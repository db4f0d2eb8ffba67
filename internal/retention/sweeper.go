// Package retention removes audio artifacts that no logged exchange refers to,
// such as uploads of rejected requests or files left behind by failed deletes.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"stubot/internal/metrics"
	"stubot/internal/storage"
)

// ArtifactStore lists and removes stored audio.
type ArtifactStore interface {
	List() ([]storage.ArtifactInfo, error)
	Delete(filename string) (bool, error)
}

// ReferenceSource reports every artifact filename still referenced by the log.
type ReferenceSource interface {
	ReferencedAudio(ctx context.Context) (map[string]struct{}, error)
}

// MinAge is the floor applied to the sweeper's age threshold. An artifact
// younger than this may belong to an exchange that is not logged yet.
const MinAge = 5 * time.Minute

// Sweeper periodically deletes orphaned artifacts. Files younger than minAge
// (never less than MinAge) are left alone.
type Sweeper struct {
	store  ArtifactStore
	refs   ReferenceSource
	minAge time.Duration
	logger *slog.Logger
	now    func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSweeper(store ArtifactStore, refs ReferenceSource, minAge time.Duration, logger *slog.Logger) *Sweeper {
	if minAge < MinAge {
		minAge = MinAge
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		store:  store,
		refs:   refs,
		minAge: minAge,
		logger: logger.With("component", "retention"),
		now:    time.Now,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Sweep runs one pass and returns the number of files removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	files, err := s.store.List()
	if err != nil {
		return 0, fmt.Errorf("list artifacts: %w", err)
	}
	// Fetch references after listing so a file written in between is either
	// young or already referenced.
	refs, err := s.refs.ReferencedAudio(ctx)
	if err != nil {
		return 0, fmt.Errorf("load referenced artifacts: %w", err)
	}

	cutoff := s.now().Add(-s.minAge)
	removed := 0
	for _, f := range files {
		if _, ok := refs[f.Filename]; ok {
			continue
		}
		if f.ModTime.After(cutoff) {
			continue
		}
		ok, err := s.store.Delete(f.Filename)
		if err != nil {
			s.logger.Warn("failed to delete orphaned artifact", "filename", f.Filename, "err", err)
			continue
		}
		if ok {
			removed++
		}
	}
	metrics.SweptArtifacts.Add(float64(removed))
	return removed, nil
}

// Start schedules Sweep using a standard five-field cron expression.
func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		n, err := s.Sweep(s.ctx)
		if err != nil {
			s.logger.Error("artifact sweep failed", "err", err)
			return
		}
		s.logger.Info("artifact sweep finished", "removed", n)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("artifact sweeper started", "schedule", schedule, "min_age", s.minAge)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
}
