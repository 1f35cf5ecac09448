package models

import "time"

// ScheduledTrigger records one scheduled press of a kind's start control
type ScheduledTrigger struct {
	Kind     JobKind      `json:"kind" yaml:"kind"`
	Schedule string       `json:"schedule" yaml:"schedule"`
	Action   string       `json:"action" yaml:"action"` // "start", "resume" or "" when nothing was sent
	Outcome  StartOutcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Message  string       `json:"message,omitempty" yaml:"message,omitempty"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
	Time     time.Time    `json:"time" yaml:"time"`
}
