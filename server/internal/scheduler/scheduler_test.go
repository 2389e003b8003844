package scheduler

import (
	"testing"

	"github.com/actiondispatch/dispatch/shared/model"
)

func TestJoinArgs(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"empty", nil, ""},
		{"single", []string{"-v"}, "-v"},
		{"multiple", []string{"-v", "--dir", "/tmp"}, "-v --dir /tmp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := joinArgs(tc.args); got != tc.want {
				t.Errorf("joinArgs(%v) = %q, want %q", tc.args, got, tc.want)
			}
		})
	}
}

func TestDispatchSkipsOfflineAgents(t *testing.T) {
	s := &Scheduler{}
	job := model.Job{
		Name:           "nightly-sync",
		AgentsRequired: []string{"worker-1", "worker-2"},
	}
	// dispatch with no connected agents should not panic and should leave
	// agents_running untouched since SendToAgent is never reached when the
	// online set is empty.
	s.dispatch(nil, job, nil)
}

func TestDispatchSkipsAlreadyRunningAgents(t *testing.T) {
	s := &Scheduler{}
	job := model.Job{
		Name:           "nightly-sync",
		AgentsRequired: []string{"worker-1"},
		AgentsRunning:  []string{"worker-1"},
	}
	// worker-1 is online but already recorded as running: dispatch must not
	// attempt to send to it again (s.registry is nil, which would panic if
	// SendToAgent were reached).
	s.dispatch(nil, job, []string{"worker-1"})
}
