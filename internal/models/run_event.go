package models

import "encoding/json"

type RunEventType string

const (
	RunEventTypeMetadata  RunEventType = "metadata"
	RunEventTypeValues    RunEventType = "values"
	RunEventTypeMessage   RunEventType = "message"
	RunEventTypeInterrupt RunEventType = "interrupt"
	RunEventTypeError     RunEventType = "error"
	RunEventTypeEnd       RunEventType = "end"
)

// RunEvent is one ordered frame produced by an agent runtime stream.
type RunEvent interface {
	GetType() RunEventType
}

type RunMetadata struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`
}

func (m RunMetadata) GetType() RunEventType {
	return RunEventTypeMetadata
}

// RunValues is a full state snapshot.
type RunValues struct {
	Messages  []*Message `json:"messages"`
	Interrupt *Interrupt `json:"interrupt,omitempty"`
}

func (m RunValues) GetType() RunEventType {
	return RunEventTypeValues
}

// RunMessage carries one message delta: same id updates, new id appends.
type RunMessage struct {
	Message *Message `json:"message"`
}

func (m RunMessage) GetType() RunEventType {
	return RunEventTypeMessage
}

// Interrupt is a runtime pause awaiting external input.
type Interrupt struct {
	Value json.RawMessage `json:"value,omitempty"`
}

type RunInterrupt struct {
	Interrupt Interrupt `json:"interrupt"`
}

func (m RunInterrupt) GetType() RunEventType {
	return RunEventTypeInterrupt
}

type RunError struct {
	Error string `json:"error"`
}

func (m RunError) GetType() RunEventType {
	return RunEventTypeError
}

type RunEnd struct{}

func (m RunEnd) GetType() RunEventType {
	return RunEventTypeEnd
}

// RunRequest is what the submission pipeline hands to a runtime.
type RunRequest struct {
	ThreadID string
	// Messages is the complete outbound transcript after reconciliation.
	Messages []*Message
	// NewMessages are the entries appended by this submission only, for
	// runtimes that keep thread state server side.
	NewMessages []*Message
	Context     GenerationContext
	Checkpoint  *Checkpoint
}
