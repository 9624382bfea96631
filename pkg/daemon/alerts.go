package daemon

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/events"
	"github.com/lookingglasspt/lkgcal/pkg/types"
)

// alertLog keeps the most recent alerts and publishes each one.
type alertLog struct {
	mu      sync.Mutex
	max     int
	entries []types.Alert
}

func newAlertLog(max int) *alertLog {
	return &alertLog{max: max}
}

func (a *alertLog) Alert(message string) {
	now := time.Now().Round(0)

	a.mu.Lock()
	if len(a.entries) >= a.max {
		a.entries = a.entries[1:]
	}
	a.entries = append(a.entries, types.Alert{Message: message, Time: now})
	a.mu.Unlock()

	logrus.WithField("message", message).Warn("calibration source raised an alert")
	hub.Publish(events.AlertRaised, events.AlertRaisedEvent{Message: message, Ts: now.Unix()})
}

// List returns the alerts, oldest first.
func (a *alertLog) List() []types.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.Alert{}, a.entries...)
}
