package registry

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/actiondispatch/dispatch/shared/wire"
)

// newTestRegistry builds a Registry with no store dependency, for tests that
// only exercise the connection map and SendToAgent, not Discover/Ping's
// store interaction.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return &Registry{
		conns:  make(map[ConnectedAgent]net.Conn),
		logger: zap.NewNop(),
	}
}

func TestSendToAgentUnknownName(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.SendToAgent("ghost", wire.Ping{}); err == nil {
		t.Fatal("expected error sending to an unconnected agent")
	}
}

func TestSendToAgentRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	r := newTestRegistry(t)
	r.conns[ConnectedAgent{Name: "worker-1", Addr: "10.0.0.1:9000"}] = client

	done := make(chan error, 1)
	go func() {
		_, err := wire.Receive(server)
		done <- err
	}()

	if err := r.SendToAgent("worker-1", wire.Ping{}); err != nil {
		t.Fatalf("SendToAgent: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("receive side: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for receive")
	}
}

func TestConnectedNames(t *testing.T) {
	r := newTestRegistry(t)
	if names := r.ConnectedNames(); len(names) != 0 {
		t.Fatalf("expected no connected names, got %v", names)
	}

	_, client := net.Pipe()
	defer client.Close()
	r.conns[ConnectedAgent{Name: "worker-1", Addr: "10.0.0.1:9000"}] = client

	names := r.ConnectedNames()
	if len(names) != 1 || names[0] != "worker-1" {
		t.Fatalf("expected [worker-1], got %v", names)
	}
}
