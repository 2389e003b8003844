package reporter

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/shared/wire"
)

func TestSessionRegistersThenDrainsQueue(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	l := New("unused", Identity{Name: "worker-1", Hostname: "worker-1.local", Port: 8081}, zap.NewNop())
	l.Report(wire.JobComplete{JobName: "nightly-sync", AgentName: "worker-1", Outcome: wire.OutcomeSuccess})

	ctx, cancel := context.WithCancel(context.Background())
	sessionErr := make(chan error, 1)
	go func() { sessionErr <- l.session(ctx, client) }()

	msg, err := wire.Receive(server)
	if err != nil {
		t.Fatalf("receive register: %v", err)
	}
	reg, ok := msg.(wire.RegisterAgent)
	if !ok || reg.Name != "worker-1" {
		t.Fatalf("expected RegisterAgent for worker-1, got %#v", msg)
	}

	msg, err = wire.Receive(server)
	if err != nil {
		t.Fatalf("receive job complete: %v", err)
	}
	jc, ok := msg.(wire.JobComplete)
	if !ok || jc.JobName != "nightly-sync" {
		t.Fatalf("expected JobComplete for nightly-sync, got %#v", msg)
	}

	cancel()
	select {
	case err := <-sessionErr:
		if err != nil {
			t.Fatalf("session: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session to return")
	}
}
