package jshost

import (
	"fmt"
	"io"
	"sync"
)

// AlertPrefix starts every line written for a script's alert() call.
const AlertPrefix = "alert: "

// Alerter receives messages scripts pass to alert().
type Alerter interface {
	Alert(message string)
}

// WriterAlerter writes each alert as one "alert: <message>" line.
type WriterAlerter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterAlerter(w io.Writer) *WriterAlerter {
	return &WriterAlerter{w: w}
}

func (a *WriterAlerter) Alert(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = fmt.Fprintln(a.w, AlertPrefix+message)
}

// Recorder keeps every alert and optionally forwards it.
type Recorder struct {
	mu       sync.Mutex
	messages []string
	next     Alerter
}

// NewRecorder returns a Recorder that forwards to next, which may be nil.
func NewRecorder(next Alerter) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Alert(message string) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
	if r.next != nil {
		r.next.Alert(message)
	}
}

// Messages returns the alerts seen so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
