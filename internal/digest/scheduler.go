package digest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EmailSender is the subset of email.Sender the scheduler needs, matched
// structurally so any of the teacher's Sender implementations
// (ResendSender, SMTPSender, LogSender) can be passed directly.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SchedulerConfig controls when and to whom the digest is sent.
type SchedulerConfig struct {
	SendHour     int // UTC hour (0-23) to send the daily digest
	ToAddress    string
	DashboardURL string
}

// Scheduler runs the digest once a day at SendHour UTC. Stripped of the
// teacher's per-user worker pool and threshold checks: there is a single
// operator recipient, so each run is one collect + one render + one send.
type Scheduler struct {
	collector *Collector
	sender    EmailSender
	config    SchedulerConfig
	logger    zerolog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler builds a Scheduler.
func NewScheduler(collector *Collector, sender EmailSender, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		collector: collector,
		sender:    sender,
		config:    cfg,
		logger:    logger.With().Str("component", "digest-scheduler").Logger(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the scheduler loop as a goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info().Int("send_hour", s.config.SendHour).Msg("digest scheduler started")
}

// Stop signals the scheduler to stop and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunNow immediately triggers a digest run. Useful for testing and for the
// CLI's one-shot `digest` action.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.run(ctx, time.Now().UTC())
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	var lastRun time.Time
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			now = now.UTC()
			if now.Hour() != s.config.SendHour || now.Minute() != 0 {
				continue
			}
			if now.Sub(lastRun) <= 23*time.Hour {
				continue
			}
			lastRun = now
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := s.run(ctx, now); err != nil {
				s.logger.Error().Err(err).Msg("digest run failed")
			}
			cancel()
		}
	}
}

func (s *Scheduler) run(ctx context.Context, now time.Time) error {
	summary, err := s.collector.Collect(ctx, now, 24*time.Hour)
	if err != nil {
		return err
	}

	subject, htmlBody, err := RenderDigestEmail(summary, s.config.DashboardURL)
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, s.config.ToAddress, subject, htmlBody); err != nil {
		return err
	}
	s.logger.Info().Int("ready_count", len(summary.Ready)).Msg("digest sent")
	return nil
}
