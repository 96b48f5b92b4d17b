package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/examlens/constants"
)

// ErrorRecord is the stored outcome of a failed run.
type ErrorRecord struct {
	Message string          `json:"error"`
	Stage   constants.Stage `json:"stage"`
}

// Outcome is exactly one of Result or Error.
type Outcome struct {
	RunID       string
	CompletedAt time.Time
	Result      *AnalysisResult
	Error       *ErrorRecord
}

// Success wraps a validated result.
func Success(runID string, r AnalysisResult) Outcome {
	return Outcome{RunID: runID, CompletedAt: time.Now().UTC(), Result: &r}
}

// Failure wraps an error record.
func Failure(runID string, stage constants.Stage, msg string) Outcome {
	return Outcome{RunID: runID, CompletedAt: time.Now().UTC(), Error: &ErrorRecord{Stage: stage, Message: msg}}
}

func (o Outcome) IsError() bool { return o.Error != nil }

// Kind is "result" or "error".
func (o Outcome) Kind() string {
	if o.IsError() {
		return "error"
	}
	return "result"
}

// Validate checks the mutual exclusion of result and error.
func (o Outcome) Validate() error {
	switch {
	case o.Result != nil && o.Error != nil:
		return errors.New("outcome has both result and error")
	case o.Result == nil && o.Error == nil:
		return errors.New("outcome has neither result nor error")
	case o.Error != nil && !o.Error.Stage.Valid():
		return fmt.Errorf("unknown error stage %q", o.Error.Stage)
	}
	return nil
}

// MarshalJSON writes the persisted document: the result layout or
// {"error": ..., "stage": ...}. Run identity is not part of the document.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Error != nil {
		return json.Marshal(o.Error)
	}
	return json.Marshal(o.Result)
}

// ParseOutcome decodes a persisted document.
func ParseOutcome(b []byte) (Outcome, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return Outcome{}, fmt.Errorf("decode outcome: %w", err)
	}
	if _, ok := probe["error"]; ok {
		var er ErrorRecord
		if err := json.Unmarshal(b, &er); err != nil {
			return Outcome{}, fmt.Errorf("decode error record: %w", err)
		}
		if er.Stage == "" {
			er.Stage = constants.StageTransport
		}
		return Outcome{Error: &er}, nil
	}
	var r AnalysisResult
	if err := json.Unmarshal(b, &r); err != nil {
		return Outcome{}, fmt.Errorf("decode result: %w", err)
	}
	return Outcome{Result: &r}, nil
}

// Document is the persisted JSON of the outcome.
func (o Outcome) Document() ([]byte, error) {
	return json.Marshal(o)
}
