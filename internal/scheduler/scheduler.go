package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	sweepSchedule       = "@every 10m"
	dailyReportSchedule = "0 21 * * *"
)

// Scheduler runs the background jobs: the idle-session sweep and the
// daily usage report.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	sweepFunc  func() int
	reportFunc func(ctx context.Context) error
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetSweepFunction sets the job that drops idle sessions and returns
// how many were dropped.
func (s *Scheduler) SetSweepFunction(f func() int) {
	s.sweepFunc = f
}

// SetReportFunction sets the job that generates the daily report.
func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) {
	s.reportFunc = f
}

func (s *Scheduler) Start() error {
	if s.sweepFunc != nil {
		_, err := s.cron.AddFunc(sweepSchedule, func() {
			if dropped := s.sweepFunc(); dropped > 0 {
				log.Printf("🧹 Swept %d idle character session(s)", dropped)
			}
		})
		if err != nil {
			return err
		}
	}

	if s.reportFunc != nil {
		// Daily at 21:00 UTC
		_, err := s.cron.AddFunc(dailyReportSchedule, func() {
			log.Println("🕘 Triggered daily usage report at 21:00 UTC")
			if err := s.reportFunc(s.ctx); err != nil {
				log.Printf("❌ Daily report generation failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	if s.sweepFunc == nil && s.reportFunc == nil {
		log.Println("⚠️ No jobs configured, scheduler will not start")
		return nil
	}

	s.cron.Start()
	log.Println("📅 Scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}
