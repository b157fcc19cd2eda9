package paymentclient

import (
	"context"
	"time"
)

const (
	DefaultInterval    = 6 * time.Second
	DefaultMaxAttempts = 30
)

type PollState string

const (
	PollStateSuccess PollState = "success"
	PollStateFailed  PollState = "failed"
	PollStateTimeout PollState = "timeout"
)

// StatusChecker is satisfied by *Client.
type StatusChecker interface {
	CheckStatus(ctx context.Context, checkoutRequestID string) (*StatusResponse, error)
}

type PollResult struct {
	State    PollState
	Attempts int
	// Status is the last successful answer, nil if every attempt errored.
	Status *StatusResponse
	// LastErr is the error of the last failed attempt.
	LastErr error
}

// Poller asks for a payment's status until it is terminal or the attempt cap
// is reached. Request errors count as attempts and do not stop polling.
type Poller struct {
	Checker     StatusChecker
	Interval    time.Duration
	MaxAttempts int
	// Wait blocks for d or until ctx is done; defaults to a timer.
	Wait func(ctx context.Context, d time.Duration) error
	// OnAttempt, when set, observes every attempt.
	OnAttempt func(attempt int, status *StatusResponse, err error)
}

func NewPoller(checker StatusChecker) *Poller {
	return &Poller{Checker: checker, Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts, Wait: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poll checks immediately and then once per interval. It returns an error
// only when ctx is cancelled.
func (p *Poller) Poll(ctx context.Context, checkoutRequestID string) (*PollResult, error) {
	wait := p.Wait
	if wait == nil {
		wait = sleep
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	res := &PollResult{State: PollStateTimeout}
	for {
		if res.Attempts > 0 {
			if res.Attempts >= maxAttempts {
				return res, nil
			}
			if err := wait(ctx, interval); err != nil {
				return res, err
			}
		}
		res.Attempts++

		status, err := p.Checker.CheckStatus(ctx, checkoutRequestID)
		if p.OnAttempt != nil {
			p.OnAttempt(res.Attempts, status, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.LastErr = err
			continue
		}
		res.Status = status
		switch {
		case status.Succeeded():
			res.State = PollStateSuccess
			return res, nil
		case status.Failed():
			res.State = PollStateFailed
			return res, nil
		}
	}
}
