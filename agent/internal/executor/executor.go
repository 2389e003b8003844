// Package executor runs dispatched commands as child processes and reports
// their outcome. Per the concurrency model, each DispatchJob becomes its
// own task — there is no internal job queue. Back-pressure instead comes
// from the Reporter Link's bounded report channel: a burst of concurrently
// finishing jobs suspends at Report, not at dispatch.
package executor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/shared/wire"
)

// Reporter is implemented by the Reporter Link: it accepts a finished job's
// report for delivery to the coordinator. Report may block if the link's
// queue is full.
type Reporter interface {
	Report(wire.JobComplete)
}

// Assignment is one dispatched command to run.
type Assignment struct {
	JobName          string
	Command          string
	Args             string
	ValidReturnCodes []int32
}

// Executor spawns one task per Assignment and reports each outcome via
// Reporter.
type Executor struct {
	agentName string
	reporter  Reporter
	logger    *zap.Logger
}

// New creates an Executor.
func New(agentName string, reporter Reporter, logger *zap.Logger) *Executor {
	return &Executor{
		agentName: agentName,
		reporter:  reporter,
		logger:    logger.Named("executor"),
	}
}

// Run executes the assignment in its own goroutine, so the caller (the
// Agent Server's accept loop) never blocks on job duration.
func (e *Executor) Run(ctx context.Context, a Assignment) {
	go e.execute(ctx, a)
}

// execute runs one assignment to completion and reports it. Args is
// whitespace-tokenised, not passed through a shell — a command cannot
// smuggle additional shell syntax through its argument string.
func (e *Executor) execute(ctx context.Context, a Assignment) {
	startedAt := time.Now()
	args := strings.Fields(a.Args)

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, a.Command, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	e.logger.Info("job started", zap.String("job", a.JobName), zap.String("command", a.Command))
	runErr := cmd.Run()
	completedAt := time.Now()

	returnCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			returnCode = exitErr.ExitCode()
		} else {
			// The process never started (missing binary, permission denied).
			returnCode = -1
		}
	}

	outcome := classify(returnCode, a.ValidReturnCodes)
	e.logger.Info("job finished",
		zap.String("job", a.JobName),
		zap.Int("return_code", returnCode),
		zap.String("outcome", outcome.String()),
	)

	e.reporter.Report(wire.JobComplete{
		StartedAt:   startedAt.Unix(),
		CompletedAt: completedAt.Unix(),
		JobName:     a.JobName,
		Command:     a.Command,
		AgentName:   e.agentName,
		ReturnCode:  int32(returnCode),
		Outcome:     outcome,
		Output:      output.String(),
	})
}

// classify reports Success only when valid codes were specified and the
// observed code is among them; an empty valid set can never be satisfied.
func classify(returnCode int, validReturnCodes []int32) wire.Outcome {
	if len(validReturnCodes) == 0 {
		return wire.OutcomeFailure
	}
	for _, v := range validReturnCodes {
		if int(v) == returnCode {
			return wire.OutcomeSuccess
		}
	}
	return wire.OutcomeFailure
}
