package store

import "github.com/actiondispatch/dispatch/shared/model"

// AgentDoc, JobDoc, and RunDoc are the document shapes of the three
// collections this package wraps. They are the same shapes the rest of the
// coordinator reasons about, defined once in shared/model so the wire codec
// and the store agree on field semantics without converting between them.
type (
	AgentDoc = model.Agent
	JobDoc   = model.Job
	RunDoc   = model.Run
)
