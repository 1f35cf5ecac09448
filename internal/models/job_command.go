package models

import "encoding/json"

// StartOutcome is the status field of a start response
type StartOutcome string

const (
	StartOutcomeStarted               StartOutcome = "started"
	StartOutcomeRunning               StartOutcome = "running"
	StartOutcomeAlreadyCollectedToday StartOutcome = "already_collected_today"
)

// StartRequest is the body of POST <job>/start. Kind-specific params are
// sent alongside the resume flag at the top level.
type StartRequest struct {
	Resume bool
	Params map[string]any
}

func (r StartRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Params)+1)
	for k, v := range r.Params {
		body[k] = v
	}
	body["resume"] = r.Resume
	return json.Marshal(body)
}

func (r *StartRequest) UnmarshalJSON(data []byte) error {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	r.Resume = false
	if resume, ok := body["resume"].(bool); ok {
		r.Resume = resume
	}
	delete(body, "resume")
	r.Params = nil
	if len(body) > 0 {
		r.Params = body
	}
	return nil
}

// StartResponse is the answer to a start request
type StartResponse struct {
	Status  StartOutcome `json:"status"`
	Message string       `json:"message"`
}

// Accepted is true only when the server launched a new run. Every other
// outcome is a refusal, not an error.
func (r StartResponse) Accepted() bool {
	return r.Status == StartOutcomeStarted
}

// StopResponse is the answer to a stop request. Stop is cooperative: the
// job leaves is_running at some later poll.
type StopResponse struct {
	Message string `json:"message"`
}
