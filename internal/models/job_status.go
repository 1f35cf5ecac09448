package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// JobStatus is the server-reported snapshot of a job kind. The client only
// ever holds a cached copy; every poll replaces it wholesale.
type JobStatus struct {
	IsRunning        bool           `json:"is_running" yaml:"is_running"`
	Progress         float64        `json:"progress" yaml:"progress"` // Raw server value, may be out of range
	TotalUnits       int            `json:"total_units" yaml:"total_units"`
	ProcessedUnits   int            `json:"processed_units" yaml:"processed_units"`
	ProducedCount    int            `json:"produced_count" yaml:"produced_count"`
	CurrentUnitLabel *string        `json:"current_unit_label" yaml:"current_unit_label"`
	StartTime        *Timestamp     `json:"start_time" yaml:"start_time"`
	EndTime          *Timestamp     `json:"end_time" yaml:"end_time"`
	ErrorMessage     *string        `json:"error_message" yaml:"error_message"`
	CanResume        bool           `json:"can_resume" yaml:"can_resume"`
	Extra            map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"` // Kind-specific fields outside the canonical shape
}

// Canonical JobStatus field names
const (
	FieldIsRunning        = "is_running"
	FieldProgress         = "progress"
	FieldTotalUnits       = "total_units"
	FieldProcessedUnits   = "processed_units"
	FieldProducedCount    = "produced_count"
	FieldCurrentUnitLabel = "current_unit_label"
	FieldStartTime        = "start_time"
	FieldEndTime          = "end_time"
	FieldErrorMessage     = "error_message"
	FieldCanResume        = "can_resume"
)

var statusFields = map[string]bool{
	FieldIsRunning:        true,
	FieldProgress:         true,
	FieldTotalUnits:       true,
	FieldProcessedUnits:   true,
	FieldProducedCount:    true,
	FieldCurrentUnitLabel: true,
	FieldStartTime:        true,
	FieldEndTime:          true,
	FieldErrorMessage:     true,
	FieldCanResume:        true,
}

// IsStatusField reports whether name is a canonical JobStatus field
func IsStatusField(name string) bool {
	return statusFields[name]
}

// Percent returns the progress clamped to [0,100] for display. Only a
// complete run shows 100.
func (s *JobStatus) Percent() int {
	if s == nil || math.IsNaN(s.Progress) {
		return 0
	}
	p := math.Round(s.Progress)
	if p < 0 {
		return 0
	}
	if p >= 100 {
		if !s.Complete() {
			return 99
		}
		return 100
	}
	return int(p)
}

// Complete reports whether the server reports the full run done. The raw
// value is used so that 99.6 is not rounded up to a finished run.
func (s *JobStatus) Complete() bool {
	return s != nil && s.Progress >= 100
}

// HasError reports whether the server recorded a job failure
func (s *JobStatus) HasError() bool {
	return s != nil && s.ErrorMessage != nil && strings.TrimSpace(*s.ErrorMessage) != ""
}

// ErrorText returns the server error message or ""
func (s *JobStatus) ErrorText() string {
	if !s.HasError() {
		return ""
	}
	return *s.ErrorMessage
}

// CurrentUnit returns the label of the unit being processed or ""
func (s *JobStatus) CurrentUnit() string {
	if s == nil || s.CurrentUnitLabel == nil {
		return ""
	}
	return *s.CurrentUnitLabel
}

// Clone returns a deep copy so callers can never mutate a cached snapshot
func (s *JobStatus) Clone() *JobStatus {
	if s == nil {
		return nil
	}
	c := *s
	if s.CurrentUnitLabel != nil {
		v := *s.CurrentUnitLabel
		c.CurrentUnitLabel = &v
	}
	if s.ErrorMessage != nil {
		v := *s.ErrorMessage
		c.ErrorMessage = &v
	}
	if s.StartTime != nil {
		v := *s.StartTime
		c.StartTime = &v
	}
	if s.EndTime != nil {
		v := *s.EndTime
		c.EndTime = &v
	}
	if s.Extra != nil {
		c.Extra = make(map[string]any, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// DecodeJobStatus decodes a status payload. aliases maps backend field names
// (e.g. "total_investors") onto canonical names (e.g. "total_units"); fields
// that match neither are kept in Extra.
func DecodeJobStatus(data []byte, aliases map[string]string) (*JobStatus, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode status object: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode status object: null payload")
	}

	status := &JobStatus{}
	for key, value := range raw {
		field := key
		if alias, ok := aliases[key]; ok {
			field = alias
		}

		var err error
		switch field {
		case FieldIsRunning:
			err = json.Unmarshal(value, &status.IsRunning)
		case FieldCanResume:
			err = json.Unmarshal(value, &status.CanResume)
		case FieldProgress:
			status.Progress, err = decodeNumber(value)
		case FieldTotalUnits:
			status.TotalUnits, err = decodeCount(value)
		case FieldProcessedUnits:
			status.ProcessedUnits, err = decodeCount(value)
		case FieldProducedCount:
			status.ProducedCount, err = decodeCount(value)
		case FieldCurrentUnitLabel:
			status.CurrentUnitLabel, err = decodeOptionalString(value)
		case FieldErrorMessage:
			status.ErrorMessage, err = decodeOptionalString(value)
		case FieldStartTime:
			status.StartTime, err = decodeOptionalTimestamp(value)
		case FieldEndTime:
			status.EndTime, err = decodeOptionalTimestamp(value)
		default:
			var v any
			if err = json.Unmarshal(value, &v); err == nil {
				if status.Extra == nil {
					status.Extra = make(map[string]any)
				}
				status.Extra[key] = v
			}
		}
		if err != nil {
			return nil, fmt.Errorf("decode status field %s: %w", key, err)
		}
	}

	return status, nil
}

func isNull(value json.RawMessage) bool {
	return len(bytes.TrimSpace(value)) == 0 || bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

func decodeNumber(value json.RawMessage) (float64, error) {
	if isNull(value) {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(value, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func decodeCount(value json.RawMessage) (int, error) {
	n, err := decodeNumber(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}

func decodeOptionalString(value json.RawMessage) (*string, error) {
	if isNull(value) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeOptionalTimestamp(value json.RawMessage) (*Timestamp, error) {
	if isNull(value) {
		return nil, nil
	}
	var ts Timestamp
	if err := ts.UnmarshalJSON(value); err != nil {
		return nil, err
	}
	if ts.IsZero() {
		return nil, nil
	}
	return &ts, nil
}

// Timestamp accepts RFC3339 and the naive ISO-8601 forms backends emit
// without a zone. Naive values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses s with the accepted layouts
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// MarshalYAML renders the timestamp as an RFC3339 string
func (t Timestamp) MarshalYAML() (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC().Format(time.RFC3339), nil
}

// TimePtr returns the underlying time or nil
func (t *Timestamp) TimePtr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}
