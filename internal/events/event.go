// Package events fans pipeline phase transitions out to registered sinks
// without ever blocking the pipeline itself.
package events

import (
	"fmt"
	"time"

	"github.com/vastio/vastfetch/internal/vast"
)

// Event records one pipeline phase transition.
type Event struct {
	RequestID string
	Phase     vast.Phase
	Source    string
	Success   bool
	Error     string
	Elapsed   time.Duration
	At        time.Time
}

// Validate rejects events that would be useless to every sink.
func (e Event) Validate() error {
	if e.Phase == "" {
		return fmt.Errorf("event is missing a phase")
	}
	if e.At.IsZero() {
		return fmt.Errorf("event is missing a timestamp")
	}
	return nil
}
