// Package reporter is the Reporter Link component: the agent's single
// outbound connection to the coordinator. It registers the agent on
// connect and is the sole writer draining JobComplete reports queued by the
// executor, reconnecting on a fixed schedule rather than exponential
// backoff — the fleet is small and bounded, so there is no thundering-herd
// risk to avoid.
package reporter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/shared/wire"
)

const (
	// maxAttempts and retryDelay are the fixed reconnect policy: the agent
	// tries the coordinator address this many times, this far apart, before
	// giving up the current Run call.
	maxAttempts = 60
	retryDelay  = 5 * time.Second

	// queueCapacity bounds how many JobComplete reports the executor can
	// have queued ahead of the link actually writing them.
	queueCapacity = 100
)

// Identity is the agent's registration payload, sent once per connection.
type Identity struct {
	Name     string
	Hostname string
	Port     int32
}

// Link maintains the connection to the coordinator and drains a bounded
// queue of JobComplete reports onto it.
type Link struct {
	addr     string
	identity Identity
	logger   *zap.Logger

	queue chan wire.JobComplete

	mu   sync.Mutex
	conn net.Conn
}

// New creates a Link. Call Run to connect and begin draining reports.
func New(addr string, identity Identity, logger *zap.Logger) *Link {
	return &Link{
		addr:     addr,
		identity: identity,
		logger:   logger.Named("reporter"),
		queue:    make(chan wire.JobComplete, queueCapacity),
	}
}

// Report enqueues a JobComplete for delivery. It blocks if the queue is
// full — backpressure here means the executor is producing completions
// faster than the link can deliver them, which should never sustain.
func (l *Link) Report(jc wire.JobComplete) {
	l.queue <- jc
}

// Run connects to the coordinator and processes the report queue until ctx
// is cancelled. On disconnect it retries up to maxAttempts times, retryDelay
// apart, then returns an error — callers should treat that as fatal for
// this process, since the coordinator address is not expected to be
// unreachable this long in normal operation.
func (l *Link) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := l.connectWithRetry(ctx)
		if err != nil {
			return err
		}

		if err := l.session(ctx, conn); err != nil {
			l.logger.Warn("session ended, reconnecting", zap.Error(err))
		}
	}
}

// connectWithRetry dials addr, retrying on the fixed schedule until it
// succeeds, ctx is cancelled, or maxAttempts is exhausted.
func (l *Link) connectWithRetry(ctx context.Context) (net.Conn, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := net.DialTimeout("tcp", l.addr, retryDelay)
		if err == nil {
			return conn, nil
		}
		l.logger.Warn("connect failed", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("reporter: failed to connect to %s after %d attempts", l.addr, maxAttempts)
}

// session registers over conn, then drains the report queue onto it until
// ctx is cancelled or a write fails.
func (l *Link) session(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	if err := wire.Send(conn, wire.RegisterAgent{
		Name:     l.identity.Name,
		Hostname: l.identity.Hostname,
		Port:     l.identity.Port,
	}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	l.logger.Info("registered with coordinator", zap.String("addr", l.addr))

	for {
		select {
		case <-ctx.Done():
			return nil
		case jc := <-l.queue:
			if err := wire.Send(conn, jc); err != nil {
				// Put the report back so it is not lost; the next session
				// will deliver it.
				l.queue <- jc
				return fmt.Errorf("send job complete: %w", err)
			}
		}
	}
}
