// Package activity keeps an audit trail of what happened to a project. It
// listens on the internal event bus and stores one entry per event, so the
// feed survives restarts and is queryable per project.
package activity

import "time"

// Entry is a single line of the project activity feed. Kind carries the
// event type the entry was recorded from. Detail holds the full event
// payload as JSON for consumers that need more than the summary.
type Entry struct {
	Uid        string
	ProjectUid string
	Kind       string
	Summary    string
	Detail     string
	OccurredAt time.Time
}
