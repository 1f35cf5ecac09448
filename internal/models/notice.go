package models

import "time"

// NoticeLevel is the severity a console renders a notice with
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// NoticeCode classifies why a notice was raised
type NoticeCode string

const (
	NoticeStarted              NoticeCode = "started"
	NoticeAlreadyRunning       NoticeCode = "already_running"
	NoticeRejected             NoticeCode = "rejected"
	NoticeStopRequested        NoticeCode = "stop_requested"
	NoticeCapabilityDenied     NoticeCode = "capability_denied"
	NoticeCommunicationFailure NoticeCode = "communication_failure"
	NoticeJobFailed            NoticeCode = "job_failed"
	NoticeCompleted            NoticeCode = "completed"
)

// Notice is a toast-style message for the user. Communication failures are
// monitoring problems; only NoticeJobFailed reports a failed job.
type Notice struct {
	Kind    JobKind     `json:"kind" yaml:"kind"`
	Level   NoticeLevel `json:"level" yaml:"level"`
	Code    NoticeCode  `json:"code" yaml:"code"`
	Message string      `json:"message" yaml:"message"`
	Time    time.Time   `json:"time" yaml:"time"`
}
