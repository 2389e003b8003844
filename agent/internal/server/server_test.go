package server

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/agent/internal/executor"
	"github.com/actiondispatch/dispatch/shared/wire"
)

type nopReporter struct{}

func (nopReporter) Report(wire.JobComplete) {}

func TestHandlePingDoesNotPanic(t *testing.T) {
	exec := executor.New("worker-1", nopReporter{}, zap.NewNop())
	s := &Server{exec: exec, logger: zap.NewNop()}
	s.handle(context.Background(), wire.Ping{}, s.logger)
}

func TestHandleDispatchJobDoesNotBlock(t *testing.T) {
	exec := executor.New("worker-1", nopReporter{}, zap.NewNop())
	s := &Server{exec: exec, logger: zap.NewNop()}
	s.handle(context.Background(), wire.DispatchJob{JobName: "echo-job", Command: "true"}, s.logger)
}

func TestHandleUnknownVariant(t *testing.T) {
	exec := executor.New("worker-1", nopReporter{}, zap.NewNop())
	s := &Server{exec: exec, logger: zap.NewNop()}
	s.handle(context.Background(), nil, s.logger)
}
