package staking

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stakewell/engine/internal/app/system"
	"github.com/stakewell/engine/internal/storage"
	"github.com/stakewell/engine/pkg/logger"
)

// Scheduler sweeps active contracts and settles the ones that are due. A
// ticker drives frequent incremental sweeps; a nightly cron entry runs the
// same sweep right after the day boundary, when deadlines typically expire.
type Scheduler struct {
	contracts storage.ContractStore
	service   *Service
	interval  time.Duration
	log       *logger.Logger
	cron      *cron.Cron

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

var _ system.Service = (*Scheduler)(nil)

func NewScheduler(contracts storage.ContractStore, service *Service, interval time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("settlement-scheduler")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		contracts:   contracts,
		service:     service,
		interval:    interval,
		log:         log,
		cron:        cron.New(cron.WithLocation(time.UTC)),
		nextAttempt: make(map[string]time.Time),
	}
}

func (s *Scheduler) Name() string { return "settlement-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	if _, err := s.cron.AddFunc("5 0 * * *", func() { s.sweep(runCtx) }); err != nil {
		cancel()
		s.running = false
		s.cancel = nil
		return err
	}
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.sweep(runCtx)
			}
		}
	}()

	s.log.Info("settlement scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (s *Scheduler) sweep(ctx context.Context) {
	contracts, err := s.contracts.ListActiveContracts(ctx)
	if err != nil {
		s.log.WithError(err).Warn("list active contracts failed")
		return
	}

	now := time.Now().UTC()
	for _, c := range contracts {
		if !s.shouldAttempt(c.ID, now) {
			continue
		}

		settled, changed, err := s.service.EvaluateContract(ctx, c.ID, now)
		if err != nil {
			s.log.WithError(err).Warnf("evaluate contract %s failed", c.ID)
			s.scheduleNext(c.ID, 0)
			continue
		}
		if !changed {
			continue
		}
		s.log.Infof("contract %s settled as %s", settled.ID, settled.Status)
		s.clearSchedule(c.ID)
	}
}

func (s *Scheduler) shouldAttempt(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.nextAttempt[id]
	if !ok || now.After(next) {
		return true
	}
	return false
}

func (s *Scheduler) scheduleNext(id string, after time.Duration) {
	if after <= 0 {
		after = s.interval
	}
	s.mu.Lock()
	s.nextAttempt[id] = time.Now().Add(after)
	s.mu.Unlock()
}

func (s *Scheduler) clearSchedule(id string) {
	s.mu.Lock()
	delete(s.nextAttempt, id)
	s.mu.Unlock()
}
