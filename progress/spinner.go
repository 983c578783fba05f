package progress

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

var spinnerParts = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is a message followed by an animated frame. The frame is dropped
// once the spinner stops.
type Spinner struct {
	message      atomic.Value
	messageWidth int

	value   atomic.Int32
	stopped atomic.Bool

	started time.Time
	done    chan struct{}
}

func NewSpinner(message string) *Spinner {
	s := &Spinner{started: time.Now(), done: make(chan struct{})}
	s.message.Store(message)
	go s.start()
	return s
}

// SetMessage replaces the text shown before the frame.
func (s *Spinner) SetMessage(message string) {
	s.message.Store(message)
}

func (s *Spinner) String() string {
	var sb strings.Builder
	if message, _ := s.message.Load().(string); len(message) > 0 {
		message = strings.TrimSpace(message)
		if s.messageWidth > 0 && len(message) > s.messageWidth {
			message = message[:s.messageWidth]
		}

		fmt.Fprintf(&sb, "%s", message)
		if padding := s.messageWidth - sb.Len(); padding > 0 {
			sb.WriteString(strings.Repeat(" ", padding))
		}

		sb.WriteString(" ")
	}

	if !s.stopped.Load() {
		sb.WriteString(spinnerParts[s.value.Load()])
		sb.WriteString(" ")
	}

	return sb.String()
}

func (s *Spinner) start() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.value.Store((s.value.Load() + 1) % int32(len(spinnerParts)))
		}
	}
}

func (s *Spinner) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.done)
	}
}
