// Package ingest is the Completion Ingestor component: it accepts inbound
// TCP connections from agents and services every framed message on them —
// registration, liveness pings, and job-completion reports — persisting
// each to the store as it arrives.
package ingest

import (
	"context"
	"errors"
	"net"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/server/internal/metrics"
	"github.com/actiondispatch/dispatch/server/internal/store"
	"github.com/actiondispatch/dispatch/shared/model"
	"github.com/actiondispatch/dispatch/shared/wire"
)

// Ingestor listens for inbound agent connections and services each one
// until it closes or a malformed frame is received.
type Ingestor struct {
	addr   string
	store  *store.Store
	logger *zap.Logger

	listener net.Listener
}

// New creates an Ingestor bound to addr (e.g. ":8080"). Call Serve to begin
// accepting connections.
func New(addr string, st *store.Store, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		addr:   addr,
		store:  st,
		logger: logger.Named("ingest"),
	}
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (in *Ingestor) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", in.addr)
	if err != nil {
		return err
	}
	in.listener = ln
	in.logger.Info("listening", zap.String("addr", in.addr))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			in.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		sessionID := uuid.NewString()
		go in.serve(ctx, conn, sessionID)
	}
}

// Close stops accepting new connections.
func (in *Ingestor) Close() error {
	if in.listener == nil {
		return nil
	}
	return in.listener.Close()
}

// serve reads and handles framed messages from one agent connection until
// it closes, is cancelled, or a frame is malformed. A session never writes
// anything unprompted — every exchange is a Receive that acks on successful
// decode, per the framing contract.
func (in *Ingestor) serve(ctx context.Context, conn net.Conn, sessionID string) {
	defer conn.Close()
	log := in.logger.With(zap.String("session", sessionID), zap.String("remote", conn.RemoteAddr().String()))
	log.Info("session opened")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := wire.Receive(conn)
		if err != nil {
			if errors.Is(err, wire.ErrClosed) {
				log.Info("session closed by peer")
			} else {
				log.Warn("session terminated", zap.Error(err))
			}
			return
		}

		if err := in.handle(ctx, msg, log); err != nil {
			log.Warn("failed to handle message", zap.Error(err))
		}
	}
}

func (in *Ingestor) handle(ctx context.Context, msg wire.Message, log *zap.Logger) error {
	switch m := msg.(type) {
	case wire.Ping:
		log.Debug("ping received")
		return nil
	case wire.RegisterAgent:
		return in.handleRegisterAgent(ctx, m, log)
	case wire.JobComplete:
		return in.handleJobComplete(ctx, m, log)
	default:
		log.Warn("unexpected message variant on ingest session")
		return nil
	}
}

// handleRegisterAgent inserts a new agent document with default Offline
// status — Discover and Ping are what flip it Online once the Registry
// dials it. A duplicate (name) or (hostname, port) is logged and ignored:
// re-registration of an already-known agent is observably a no-op.
func (in *Ingestor) handleRegisterAgent(ctx context.Context, m wire.RegisterAgent, log *zap.Logger) error {
	doc := model.Agent{
		Name:     m.Name,
		Hostname: m.Hostname,
		Port:     m.Port,
		LastPing: 0,
		Status:   model.AgentStatusOffline,
	}
	err := in.store.Agents.InsertOne(ctx, doc)
	if err != nil {
		if store.IsDuplicateKeyError(err) {
			log.Info("agent already registered", zap.String("agent", m.Name))
			return nil
		}
		return err
	}
	log.Info("agent registered", zap.String("agent", m.Name), zap.String("hostname", m.Hostname), zap.Int32("port", m.Port))
	return nil
}

// handleJobComplete records the run in the append-only runs collection,
// adds the reporting agent to the job's agents_complete set, and marks the
// job Completed once every required agent has reported. Append to
// agents_complete uses $addToSet so a duplicate report (the agent retries
// after a dropped ack) does not double-count.
func (in *Ingestor) handleJobComplete(ctx context.Context, m wire.JobComplete, log *zap.Logger) error {
	run := model.Run{
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		JobName:     m.JobName,
		Command:     m.Command,
		AgentName:   m.AgentName,
		ReturnCode:  m.ReturnCode,
		Outcome:     m.Outcome,
		Output:      m.Output,
	}
	if err := in.store.Runs.InsertOne(ctx, run); err != nil {
		return err
	}
	metrics.JobCompletions.Inc()

	if _, err := in.store.Jobs.UpdateOne(ctx, bson.M{"name": m.JobName}, bson.M{
		"$addToSet": bson.M{"agents_complete": m.AgentName},
	}); err != nil {
		return err
	}

	job, err := in.store.Jobs.FindOne(ctx, bson.M{"name": m.JobName})
	if err != nil {
		return err
	}
	if len(job.AgentsRequired) > 0 && len(job.AgentsComplete) >= len(job.AgentsRequired) {
		if _, err := in.store.Jobs.UpdateOne(ctx, bson.M{"name": m.JobName}, bson.M{"$set": bson.M{
			"status":          model.JobStatusCompleted,
			"agents_running":  []string{},
			"agents_complete": []string{},
		}}); err != nil {
			return err
		}
		log.Info("job completed", zap.String("job", m.JobName))
	}

	return nil
}
