// Package server is the Agent Server (AS) component: it listens for
// inbound TCP connections from the coordinator and services each one,
// acknowledging and logging Pings (they are not forwarded to the
// coordinator) and handing DispatchJob assignments off to the executor
// without blocking the accept loop on job duration.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/agent/internal/executor"
	"github.com/actiondispatch/dispatch/shared/wire"
)

// Server accepts coordinator connections and dispatches their messages.
type Server struct {
	addr   string
	exec   *executor.Executor
	logger *zap.Logger

	listener net.Listener
}

// New creates a Server bound to addr (e.g. ":8081"). Call Serve to begin
// accepting connections.
func New(addr string, exec *executor.Executor, logger *zap.Logger) *Server {
	return &Server{
		addr:   addr,
		exec:   exec,
		logger: logger.Named("server"),
	}
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("listening", zap.String("addr", s.addr))

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
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		sessionID := uuid.NewString()
		go s.serve(ctx, conn, sessionID)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) serve(ctx context.Context, conn net.Conn, sessionID string) {
	defer conn.Close()
	log := s.logger.With(zap.String("session", sessionID), zap.String("remote", conn.RemoteAddr().String()))
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

		s.handle(ctx, msg, log)
	}
}

func (s *Server) handle(ctx context.Context, msg wire.Message, log *zap.Logger) {
	switch m := msg.(type) {
	case wire.Ping:
		log.Debug("ping received")
	case wire.DispatchJob:
		s.exec.Run(ctx, executor.Assignment{
			JobName:          m.JobName,
			Command:          m.Command,
			Args:             m.Args,
			ValidReturnCodes: m.ValidReturnCodes,
		})
		log.Info("job dispatched to executor", zap.String("job", m.JobName))
	default:
		log.Warn("unexpected message variant on agent server session")
	}
}
