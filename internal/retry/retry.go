// Package retry decides whether a failed stage attempt runs again and how
// long to wait first. The policy is a pure function of the attempt number,
// the configured backoff, and the error class; waiting is done by an
// injected Sleeper so tests never sleep.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"juicenet/internal/config"
	"juicenet/internal/queue"
	"juicenet/internal/services"
)

// Class groups failures by how they should be handled.
type Class int

const (
	// ClassTransient failures are retried with backoff.
	ClassTransient Class = iota
	// ClassConnection failures are retried with backoff.
	ClassConnection
	// ClassContent failures (rejected articles) are retried only when
	// configured to.
	ClassContent
	// ClassPermanent failures are never retried.
	ClassPermanent
	// ClassCancelled marks an interrupted attempt; the release is rolled
	// back instead of failed.
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassConnection:
		return "connection"
	case ClassContent:
		return "content"
	case ClassPermanent:
		return "permanent"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps an error to its class. Content is checked before connection
// so a rejected post never loops on connection retries.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCancelled
	case errors.Is(err, services.ErrRejected):
		return ClassContent
	case errors.Is(err, services.ErrConnection):
		return ClassConnection
	case errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrExternalTool),
		errors.Is(err, queue.ErrConcurrency),
		errors.Is(err, queue.ErrInvalidTransition):
		return ClassPermanent
	case errors.Is(err, services.ErrTransient):
		return ClassTransient
	case errors.Is(err, services.ErrVerification):
		return ClassPermanent
	default:
		return ClassTransient
	}
}

// Policy is the per-stage retry policy.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	RetryRejected bool
}

// FromConfig builds the policy from the retry and posting sections.
func FromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BaseDelay:     time.Duration(cfg.Retry.BaseDelay) * time.Second,
		MaxDelay:      time.Duration(cfg.Retry.MaxDelay) * time.Second,
		Multiplier:    cfg.Retry.Multiplier,
		RetryRejected: cfg.Posting.RetryRejected,
	}
}

// Decision is the outcome of one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
	Class Class
}

// Decide evaluates a failure. attempt is the number of attempts made so far
// for the stage, starting at 1.
func (p Policy) Decide(attempt int, err error) Decision {
	class := Classify(err)
	decision := Decision{Class: class}
	switch class {
	case ClassPermanent, ClassCancelled:
		return decision
	case ClassContent:
		if !p.RetryRejected {
			return decision
		}
	}
	if attempt >= p.maxAttempts() {
		return decision
	}
	decision.Retry = true
	decision.Delay = p.Backoff(attempt)
	return decision
}

// Backoff is the wait after the given attempt: BaseDelay * Multiplier^(attempt-1),
// capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Sleeper waits between attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper waits on a timer and returns early when ctx is done.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
