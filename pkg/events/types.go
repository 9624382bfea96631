package events

import "encoding/json"

// Event name constants
const (
	CalibrationUpdated = "calibration.updated"
	CalibrationFailed  = "calibration.failed"
	AlertRaised        = "alert.raised"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// CalibrationUpdatedEvent is the payload for calibration.updated.
type CalibrationUpdatedEvent struct {
	Source      string          `json:"source"`
	Calibration json.RawMessage `json:"calibration"`
	Ts          int64           `json:"ts"`
}

// CalibrationFailedEvent is the payload for calibration.failed.
type CalibrationFailedEvent struct {
	Source string `json:"source"`
	Error  string `json:"error"`
	Ts     int64  `json:"ts"`
}

// AlertRaisedEvent is the payload for alert.raised.
type AlertRaisedEvent struct {
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.CalibrationFailedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Source, payload.Error)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
