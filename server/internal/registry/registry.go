// Package registry is the Agent Registry & Health component: it owns the
// coordinator's in-memory map of connected agents and the two periodic
// activities that keep it honest — Discover and Ping. Both ticks, and the
// Scheduler's per-agent dispatch send, serialise on the same lock so the
// connection map is never observed mid-mutation.
package registry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/server/internal/metrics"
	"github.com/actiondispatch/dispatch/server/internal/store"
	"github.com/actiondispatch/dispatch/shared/model"
	"github.com/actiondispatch/dispatch/shared/wire"
)

const (
	// DiscoverInterval and PingInterval are the fixed tick cadences named in
	// the component design. Kept as constants rather than config so the
	// liveness characteristics of the fleet are predictable.
	DiscoverInterval = 5 * time.Second
	PingInterval     = 5 * time.Second

	dialTimeout = 3 * time.Second
	pingTimeout = 3 * time.Second
)

// ConnectedAgent is the key of the registry's connection map: an agent's
// name paired with the resolved socket address it was dialled at. Two
// records never share a connection unless they share both.
type ConnectedAgent struct {
	Name string
	Addr string
}

// Registry holds the connected-agents map and drives Discover and Ping.
type Registry struct {
	mu    sync.Mutex
	conns map[ConnectedAgent]net.Conn

	store  *store.Store
	logger *zap.Logger
	cron   gocron.Scheduler
}

// New creates a Registry. Call Start to begin the Discover and Ping ticks.
func New(st *store.Store, logger *zap.Logger) (*Registry, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("registry: create scheduler: %w", err)
	}
	return &Registry{
		conns:  make(map[ConnectedAgent]net.Conn),
		store:  st,
		logger: logger.Named("registry"),
		cron:   cron,
	}, nil
}

// byName finds the connection map entry for the given agent name, if any.
// The map is keyed on the full (name, addr) tuple, so a name lookup is a
// scan — registries are sized to a fleet of agents, not a large key space.
func (r *Registry) byName(name string) (ConnectedAgent, net.Conn, bool) {
	for ca, conn := range r.conns {
		if ca.Name == name {
			return ca, conn, true
		}
	}
	return ConnectedAgent{}, nil, false
}

// Start schedules the Discover and Ping ticks and starts the underlying
// gocron scheduler.
func (r *Registry) Start(ctx context.Context) error {
	if _, err := r.cron.NewJob(
		gocron.DurationJob(DiscoverInterval),
		gocron.NewTask(func() { r.discover(ctx) }),
	); err != nil {
		return fmt.Errorf("registry: schedule discover: %w", err)
	}
	if _, err := r.cron.NewJob(
		gocron.DurationJob(PingInterval),
		gocron.NewTask(func() { r.ping(ctx) }),
	); err != nil {
		return fmt.Errorf("registry: schedule ping: %w", err)
	}
	r.cron.Start()
	r.logger.Info("registry started", zap.Duration("discover_interval", DiscoverInterval), zap.Duration("ping_interval", PingInterval))
	return nil
}

// Stop shuts down the underlying gocron scheduler and closes every
// connected stream.
func (r *Registry) Stop() error {
	if err := r.cron.Shutdown(); err != nil {
		return fmt.Errorf("registry: shutdown: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		conn.Close()
	}
	r.logger.Info("registry stopped")
	return nil
}

// discover loads all agents from the store and dials any not already
// connected by (ip, port). A hostname resolution failure is logged and the
// agent is skipped this tick; its record is left unchanged in the store, so
// a later tick tries again.
func (r *Registry) discover(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents, err := r.store.Agents.Find(ctx, bson.D{})
	if err != nil {
		r.logger.Warn("discover: failed to load agents", zap.Error(err))
		return
	}

	connectedAddrs := make(map[string]struct{}, len(r.conns))
	for ca := range r.conns {
		connectedAddrs[ca.Addr] = struct{}{}
	}

	for _, a := range agents {
		if _, _, ok := r.byName(a.Name); ok {
			continue
		}

		addrs, err := net.LookupHost(a.Hostname)
		if err != nil || len(addrs) == 0 {
			r.logger.Warn("discover: hostname resolution failed",
				zap.String("agent", a.Name), zap.String("hostname", a.Hostname), zap.Error(err))
			continue
		}
		addr := fmt.Sprintf("%s:%d", addrs[0], a.Port)

		if _, ok := connectedAddrs[addr]; ok {
			// Duplicate (ip, port) across differently named records: the
			// first successful dial already owns this address.
			continue
		}

		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			r.setStatus(ctx, a.Name, model.AgentStatusOffline)
			continue
		}

		r.conns[ConnectedAgent{Name: a.Name, Addr: addr}] = conn
		connectedAddrs[addr] = struct{}{}
		r.setStatus(ctx, a.Name, model.AgentStatusOnline)
		metrics.ConnectedAgents.Set(float64(len(r.conns)))
		r.logger.Info("agent connected", zap.String("agent", a.Name), zap.String("addr", addr))
	}
}

// ping writes a Ping to every connected stream and waits for OK. Agents that
// fail are removed from the map and marked Offline after the full sweep.
func (r *Registry) ping(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dead []ConnectedAgent
	for ca, conn := range r.conns {
		conn.SetDeadline(time.Now().Add(pingTimeout))
		if err := wire.Send(conn, wire.Ping{}); err != nil {
			r.logger.Warn("ping failed", zap.String("agent", ca.Name), zap.Error(err))
			dead = append(dead, ca)
			continue
		}
		r.store.Agents.UpdateOne(ctx, bson.M{"name": ca.Name}, bson.M{"$set": bson.M{
			"last_ping": time.Now().Unix(),
			"status":    model.AgentStatusOnline,
		}})
	}

	for _, ca := range dead {
		r.conns[ca].Close()
		delete(r.conns, ca)
		r.setStatus(ctx, ca.Name, model.AgentStatusOffline)
	}
	metrics.ConnectedAgents.Set(float64(len(r.conns)))
}

func (r *Registry) setStatus(ctx context.Context, name string, status model.AgentStatus) {
	if _, err := r.store.Agents.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": bson.M{"status": status}}); err != nil {
		r.logger.Warn("failed to update agent status", zap.String("agent", name), zap.Error(err))
	}
}

// ConnectedNames returns a snapshot of the names of every agent currently
// connected.
func (r *Registry) ConnectedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.conns))
	for ca := range r.conns {
		names = append(names, ca.Name)
	}
	return names
}

// SendToAgent writes msg to the named agent's connection and waits for its
// OK acknowledgement, under the same lock Discover and Ping use. On failure
// the connection is left in place — the next Ping sweep will observe the
// broken stream and drop it; that keeps failure handling in one place.
func (r *Registry) SendToAgent(agentName string, msg wire.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, conn, ok := r.byName(agentName)
	if !ok {
		return fmt.Errorf("registry: agent %s is not connected", agentName)
	}
	conn.SetDeadline(time.Now().Add(pingTimeout))
	if err := wire.Send(conn, msg); err != nil {
		return fmt.Errorf("registry: send to %s: %w", agentName, err)
	}
	return nil
}
