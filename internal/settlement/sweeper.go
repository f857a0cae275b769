package settlement

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs SettleDue on a fixed interval so expired challenges settle
// without anyone hitting the settle endpoint.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	cron     *cron.Cron
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		cron:     cron.New(),
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("@every "+s.interval.String(), s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	results, err := s.svc.SettleDue(ctx)
	if err != nil {
		log.Printf("settlement sweep: %v", err)
	}
	for _, r := range results {
		if r.WinnerID != "" {
			log.Printf("settled challenge %s: winner %s, reward %s", r.ChallengeID, r.WinnerID, r.Reward)
		} else if !r.AlreadySettled {
			log.Printf("settled challenge %s: no verified finishers", r.ChallengeID)
		}
	}
}
