package models

import "time"

// EventType is the kind of message a task emits to its host.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventDone      EventType = "done"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Progress is a coarse progress report.
type Progress struct {
	Percent   float64 `json:"percent"`
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Stage     string  `json:"stage"`
}

// TaskEvent is one host-bound message. Results are copies owned by the receiver.
type TaskEvent struct {
	TaskID   string              `json:"taskId"`
	Type     EventType           `json:"type"`
	Time     time.Time           `json:"time"`
	Progress *Progress           `json:"progress,omitempty"`
	Results  []CombinationResult `json:"results,omitempty"`
	Error    string              `json:"error,omitempty"`
	Cached   bool                `json:"cached,omitempty"`
}

// Terminal reports whether the event ends the task.
func (e TaskEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError || e.Type == EventCancelled
}
