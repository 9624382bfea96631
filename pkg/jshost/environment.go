package jshost

import (
	"os"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"

	"github.com/lookingglasspt/lkgcal/pkg/dom"
)

// Environment is the browser surface handed to a hosted library. It is built
// by the caller and installed into exactly one runtime; nothing is shared
// between hosts.
type Environment struct {
	Document *dom.Document
	Window   *dom.Window
	Alerter  Alerter
	Dialer   *websocket.Dialer
}

// NewEnvironment builds a fresh document and window. A nil alerter writes
// alerts to stderr.
func NewEnvironment(alerter Alerter) *Environment {
	if alerter == nil {
		alerter = NewWriterAlerter(os.Stderr)
	}
	doc := dom.NewDocument()
	return &Environment{
		Document: doc,
		Window:   dom.NewWindow(doc),
		Alerter:  alerter,
		Dialer:   websocket.DefaultDialer,
	}
}

func (e *Environment) validate() error {
	switch {
	case e == nil:
		return pkgerrors.New("environment is nil")
	case e.Document == nil:
		return pkgerrors.New("environment has no document")
	case e.Window == nil:
		return pkgerrors.New("environment has no window")
	case e.Window.Document != e.Document:
		return pkgerrors.New("window does not belong to the environment's document")
	case e.Alerter == nil:
		return pkgerrors.New("environment has no alerter")
	}
	return nil
}
