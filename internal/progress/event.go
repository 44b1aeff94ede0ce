package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event records.
type Stage string

// Supported stages.
const (
	StagePassStart     Stage = "PASS_START"
	StagePassDone      Stage = "PASS_DONE"
	StageSourceStart   Stage = "SOURCE_START"
	StageSourceDone    Stage = "SOURCE_DONE"
	StageSourceError   Stage = "SOURCE_ERROR"
	StageSourceSkipped Stage = "SOURCE_SKIPPED"
)

// Event is one lifecycle milestone of a pass.
type Event struct {
	// TS is the emitter's clock reading.
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	// PassStarted ties events of one pass together.
	PassStarted time.Time     `json:"pass_started"`
	SourceID    string        `json:"source_id,omitempty"`
	RunID       string        `json:"run_id,omitempty"`
	Technique   string        `json:"technique,omitempty"`
	Found       int           `json:"found,omitempty"`
	Saved       int           `json:"saved,omitempty"`
	Errors      int           `json:"errors,omitempty"`
	Dur         time.Duration `json:"dur_ns,omitempty"`
	// Note carries low-volume context such as the first error.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StagePassStart, StagePassDone:
	case StageSourceStart, StageSourceDone, StageSourceError, StageSourceSkipped:
		if e.SourceID == "" {
			return fmt.Errorf("%s requires source id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
