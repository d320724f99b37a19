/*
outbox.go - Email outbox retry scheduler

PURPOSE:
  Periodically resends emails whose first delivery failed. Each failure
  pushes the next attempt out exponentially; after MaxAttempts the message
  is parked and left for a human to look at.

CONFIGURATION:
  - Interval: How often to check (default: 1 minute)
  - BatchSize: Messages per tick (default: 50)
  - MaxAttempts: Attempts before parking (default: 8)

USAGE:
  scheduler := NewOutboxScheduler(store, mailer)
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()

SEE ALSO:
  - dispatcher.go: Queues failed first attempts
*/
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/logging"
)

// parkedUntil keeps a message out of PendingEmails for good.
var parkedUntil = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

const maxBackoff = 6 * time.Hour

type OutboxScheduler struct {
	Outbox      generic.EmailOutbox
	Mailer      Mailer
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	Now         func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewOutboxScheduler(outbox generic.EmailOutbox, mailer Mailer) *OutboxScheduler {
	return &OutboxScheduler{
		Outbox:      outbox,
		Mailer:      mailer,
		Interval:    time.Minute,
		BatchSize:   50,
		MaxAttempts: 8,
		BaseDelay:   time.Minute,
		Now:         time.Now,
	}
}

// Start begins the scheduler. Calling it twice is a no-op.
func (s *OutboxScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(ctx)

	logging.From(ctx).Info("outbox scheduler started", "interval", s.Interval)
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *OutboxScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	logging.Default().Info("outbox scheduler stopped")
}

func (s *OutboxScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PassResult counts what one pass did.
type PassResult struct {
	Sent   int
	Failed int
	Parked int
}

// RunOnce sends every due message once.
func (s *OutboxScheduler) RunOnce(ctx context.Context) PassResult {
	var result PassResult
	logger := logging.From(ctx)
	now := s.Now().UTC()

	pending, err := s.Outbox.PendingEmails(ctx, now, s.BatchSize)
	if err != nil {
		logger.Error("outbox query failed", logging.ErrAttrs(err)...)
		return result
	}

	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return result
		}

		sendErr := s.Mailer.Send(ctx, msg)
		if sendErr == nil {
			if err := s.Outbox.MarkEmailSent(ctx, msg.ID, now); err != nil {
				logger.Error("outbox mark sent failed", append(logging.ErrAttrs(err), "email_id", msg.ID)...)
			}
			result.Sent++
			continue
		}

		attempts := msg.Attempts + 1
		next := now.Add(s.backoff(attempts))
		if attempts >= s.MaxAttempts {
			next = parkedUntil
			result.Parked++
			logger.Warn("outbox message parked", "email_id", msg.ID, "record_id", msg.RecordID, "attempts", attempts)
		} else {
			result.Failed++
		}
		if err := s.Outbox.MarkEmailFailed(ctx, msg.ID, sendErr.Error(), next); err != nil {
			logger.Error("outbox failure update failed", append(logging.ErrAttrs(err), "email_id", msg.ID)...)
		}
	}

	if len(pending) > 0 {
		logger.Info("outbox pass complete", "sent", result.Sent, "failed", result.Failed, "parked", result.Parked)
	}
	return result
}

// backoff doubles BaseDelay per attempt, capped at maxBackoff.
func (s *OutboxScheduler) backoff(attempts int) time.Duration {
	d := s.BaseDelay
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
