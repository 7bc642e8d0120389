package core

import "time"

// RequestContext is the ephemeral per-request record threaded through
// selection, dispatch, and retry (spec.md §3).
type RequestContext struct {
	Fingerprint     string // derived from prompt, session id, or user id
	SelectedWorkers []*Worker
	Attempt         int
	Deadline        time.Time
	CorrelationID   string
}
