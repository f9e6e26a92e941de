// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package notify delivers outbound messages off the request path.

A [Dispatcher] owns a bounded queue and a fixed pool of workers. Producers call
[Dispatcher.Enqueue] after their state change has committed; the call never blocks.
Workers hand each message to a [Sender] and retry transient failures with
exponential backoff (cenkalti/backoff). Delivery is at-least-once and best effort:
a message that exhausts its attempts is logged and dropped.
*/
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	// Kind labels the message for logs and metrics (e.g. "email_confirmation").
	Kind     string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// Recorder observes delivery outcomes. Optional.
type Recorder interface {
	ObserveNotification(kind, outcome string)
}

// ErrQueueFull is returned by Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("notify_queue_full")

// Delivery outcomes reported to the [Recorder].
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Config sizes the dispatcher.
type Config struct {
	Workers         int
	QueueSize       int
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// DrainTimeout bounds delivery of messages still queued when Run is stopped.
	DrainTimeout time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	return cfg
}

// Dispatcher queues messages and delivers them from background workers.
type Dispatcher struct {
	sender   Sender
	cfg      Config
	queue    chan Message
	logger   *slog.Logger
	recorder Recorder
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call [Dispatcher.Run] to start delivering.
func NewDispatcher(sender Sender, cfg Config, logger *slog.Logger, recorder Recorder) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		sender:   sender,
		cfg:      cfg,
		queue:    make(chan Message, cfg.QueueSize),
		logger:   logger,
		recorder: recorder,
	}
}

// Enqueue schedules a message without blocking. A full queue drops the message.
func (dispatcher *Dispatcher) Enqueue(ctx context.Context, message Message) error {
	select {
	case dispatcher.queue <- message:
		return nil
	default:
		dispatcher.logger.WarnContext(ctx, "notify_message_dropped",
			slog.String("kind", message.Kind),
			slog.String("reason", "queue_full"),
		)
		dispatcher.observe(message.Kind, OutcomeDropped)
		return ErrQueueFull
	}
}

// Pending returns the number of queued, undelivered messages.
func (dispatcher *Dispatcher) Pending() int {
	return len(dispatcher.queue)
}

/*
Run starts the workers and blocks until ctx is cancelled and every worker returned.

Description: Cancelling ctx stops intake from the queue but not delivery: the
workers first drain what is already queued, bounded by Config.DrainTimeout.
Messages left after the deadline are logged as undelivered. Cancel ctx only
once producers have stopped, i.e. after the HTTP server has shut down.

Parameters:
  - ctx: context.Context (cancel to stop)

Returns:
  - error: Always nil, shaped for errgroup
*/
func (dispatcher *Dispatcher) Run(ctx context.Context) error {
	dispatcher.logger.Info("notify_dispatcher_started",
		slog.Int("workers", dispatcher.cfg.Workers),
		slog.Int("queue_size", dispatcher.cfg.QueueSize),
	)

	for i := 0; i < dispatcher.cfg.Workers; i++ {
		dispatcher.wg.Add(1)
		go dispatcher.work(ctx)
	}

	dispatcher.wg.Wait()

	if pending := dispatcher.Pending(); pending > 0 {
		dispatcher.logger.Warn("notify_dispatcher_stopped_with_pending", slog.Int("pending", pending))
	} else {
		dispatcher.logger.Info("notify_dispatcher_stopped")
	}

	return nil
}

func (dispatcher *Dispatcher) work(ctx context.Context) {
	defer dispatcher.wg.Done()

	for {
		select {
		case <-ctx.Done():
			dispatcher.drain(ctx)
			return
		case message := <-dispatcher.queue:
			dispatcher.deliver(ctx, message)
		}
	}
}

// drain delivers the queued backlog under a fresh deadline once ctx is done.
func (dispatcher *Dispatcher) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatcher.cfg.DrainTimeout)
	defer cancel()

	for drainCtx.Err() == nil {
		select {
		case message := <-dispatcher.queue:
			dispatcher.deliver(drainCtx, message)
		default:
			return
		}
	}
}

// deliver retries a single message until it is sent, attempts run out or ctx ends.
func (dispatcher *Dispatcher) deliver(ctx context.Context, message Message) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = dispatcher.cfg.InitialInterval
	policy.MaxInterval = dispatcher.cfg.MaxInterval

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, dispatcher.sender.Send(ctx, message)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(dispatcher.cfg.MaxAttempts)),
	)

	if err != nil {
		dispatcher.logger.Error("notify_delivery_failed",
			slog.String("kind", message.Kind),
			slog.Int("attempts", attempts),
			slog.Any("error", err),
		)
		dispatcher.observe(message.Kind, OutcomeFailed)
		return
	}

	dispatcher.logger.Debug("notify_delivered",
		slog.String("kind", message.Kind),
		slog.Int("attempts", attempts),
	)
	dispatcher.observe(message.Kind, OutcomeDelivered)
}

func (dispatcher *Dispatcher) observe(kind, outcome string) {
	if dispatcher.recorder != nil {
		dispatcher.recorder.ObserveNotification(kind, outcome)
	}
}
