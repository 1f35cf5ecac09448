package monitor

import "github.com/ternarybob/pipewatch/internal/models"

// Phase is the client-observed state of a job kind
type Phase string

const (
	PhaseIdle      Phase = "idle"      // Nothing fetched yet
	PhaseInactive  Phase = "inactive"  // Not running, no error, not complete
	PhaseResumable Phase = "resumable" // Not running, server holds a resume cursor
	PhaseCompleted Phase = "completed" // Not running, progress reached 100
	PhaseErrored   Phase = "errored"   // Not running, server reported error_message
	PhaseActive    Phase = "active"    // Running
)

// Display colors understood by the console
const (
	ColorDefault    = "default"
	ColorWarning    = "warning"
	ColorSuccess    = "success"
	ColorError      = "error"
	ColorProcessing = "processing"
)

var phaseLabels = map[Phase]string{
	PhaseIdle:      "상태 확인 중",
	PhaseInactive:  "대기 중",
	PhaseResumable: "재개 가능",
	PhaseCompleted: "수집 완료",
	PhaseErrored:   "오류 발생",
	PhaseActive:    "수집 중",
}

var phaseColors = map[Phase]string{
	PhaseIdle:      ColorDefault,
	PhaseInactive:  ColorDefault,
	PhaseResumable: ColorWarning,
	PhaseCompleted: ColorSuccess,
	PhaseErrored:   ColorError,
	PhaseActive:    ColorProcessing,
}

// Label returns the console status label
func (p Phase) Label() string {
	if label, ok := phaseLabels[p]; ok {
		return label
	}
	return string(p)
}

// Color returns the console status color
func (p Phase) Color() string {
	if color, ok := phaseColors[p]; ok {
		return color
	}
	return ColorDefault
}

// Terminal reports whether the phase needs a command or refresh to change
func (p Phase) Terminal() bool {
	return p != PhaseIdle && p != PhaseActive
}

// DerivePhase maps a server snapshot onto a phase. Precedence: running,
// error, completion, resumability.
func DerivePhase(status *models.JobStatus) Phase {
	switch {
	case status == nil:
		return PhaseIdle
	case status.IsRunning:
		return PhaseActive
	case status.HasError():
		return PhaseErrored
	case status.Complete():
		return PhaseCompleted
	case status.CanResume:
		return PhaseResumable
	default:
		return PhaseInactive
	}
}
