// Package notify delivers operator notifications: service failures and
// failed updates of the DNS record.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

type Message struct {
	Severity Severity
	Text     string
	Time     time.Time
}

// Sink shows a message to the operator. Deliver may block for as long as
// the message is displayed.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

const DefaultMaxPending = 5

// Notifier delivers messages to all sinks in the background. At most
// maxPending deliveries of each severity are in flight, callers of Error and
// Warning wait for a free slot.
type Notifier struct {
	sinks    []Sink
	errors   *semaphore.Weighted
	warnings *semaphore.Weighted
	wg       sync.WaitGroup
}

func New(maxPending int, sinks ...Sink) *Notifier {
	if maxPending < 1 {
		maxPending = DefaultMaxPending
	}
	return &Notifier{
		sinks:    sinks,
		errors:   semaphore.NewWeighted(int64(maxPending)),
		warnings: semaphore.NewWeighted(int64(maxPending)),
	}
}

// Error waits for a free error slot and starts the delivery. It returns an
// error only when ctx ends first.
func (n *Notifier) Error(ctx context.Context, text string) error {
	return n.send(ctx, n.errors, Message{Severity: SeverityError, Text: text})
}

// Warning is Error for messages of the warning severity.
func (n *Notifier) Warning(ctx context.Context, text string) error {
	return n.send(ctx, n.warnings, Message{Severity: SeverityWarning, Text: text})
}

func (n *Notifier) send(ctx context.Context, sem *semaphore.Weighted, msg Message) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		slog.WarnContext(ctx, "notification dropped", "severity", msg.Severity.String(), "message", msg.Text)
		return err
	}
	msg.Time = time.Now()
	// deliveries outlive the caller's context
	dctx := context.WithoutCancel(ctx)
	n.wg.Go(func() {
		defer sem.Release(1)
		var errs []error
		for _, s := range n.sinks {
			if err := s.Deliver(dctx, msg); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			slog.ErrorContext(dctx, "notification delivery failed", "severity", msg.Severity.String(), "error", err)
		}
	})
	return nil
}

// Close waits for the deliveries in flight.
func (n *Notifier) Close() {
	n.wg.Wait()
}

// LogSink writes messages to the default slog logger.
type LogSink struct{}

func (LogSink) Deliver(ctx context.Context, msg Message) error {
	level := slog.LevelWarn
	if msg.Severity == SeverityError {
		level = slog.LevelError
	}
	slog.Log(ctx, level, msg.Text, "notification", true, "at", msg.Time)
	return nil
}
